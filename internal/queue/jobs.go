// internal/queue/jobs.go
package queue

import (
	"strconv"
	"strings"
	"time"
)

// Job kinds.
const (
	KindSyncRepository    = "sync_repository"
	KindSyncOwner         = "sync_owner"
	KindSyncExtraDetails  = "sync_extra_details"
	KindSyncTags          = "sync_tags"
	KindParseDependencies = "parse_dependencies"
	KindSyncRecent        = "sync_recent"
	KindCrawl             = "crawl"
)

// AllKinds lists every kind a worker can consume.
var AllKinds = []string{
	KindSyncRepository, KindSyncOwner, KindSyncExtraDetails, KindSyncTags,
	KindParseDependencies, KindSyncRecent, KindCrawl,
}

// UniqueTTL is the coalescing window for entity sync jobs.
const UniqueTTL = time.Hour

func uniqueKey(kind, hostName, name string) string {
	return kind + ":" + strings.ToLower(hostName) + ":" + strings.ToLower(name)
}

// SyncRepositoryJob re-syncs one repository by full name.
func SyncRepositoryJob(hostName, fullName string) Job {
	j := NewJob(KindSyncRepository, map[string]string{"host": hostName, "full_name": fullName})
	j.UniqueKey = uniqueKey(KindSyncRepository, hostName, fullName)
	return j
}

// SyncOwnerJob re-syncs one owner. force bypasses the cooldown.
func SyncOwnerJob(hostName, login string, force bool) Job {
	j := NewJob(KindSyncOwner, map[string]string{"host": hostName, "login": login, "force": strconv.FormatBool(force)})
	j.UniqueKey = uniqueKey(KindSyncOwner, hostName, login)
	return j
}

// SyncExtraDetailsJob records root file flags and then queues a tag sync.
func SyncExtraDetailsJob(hostName, fullName string) Job {
	j := NewJob(KindSyncExtraDetails, map[string]string{"host": hostName, "full_name": fullName})
	j.UniqueKey = uniqueKey(KindSyncExtraDetails, hostName, fullName)
	return j
}

// SyncTagsJob re-syncs tags and releases. force bypasses the cooldown.
func SyncTagsJob(hostName, fullName string, force bool) Job {
	j := NewJob(KindSyncTags, map[string]string{"host": hostName, "full_name": fullName, "force": strconv.FormatBool(force)})
	j.UniqueKey = uniqueKey(KindSyncTags, hostName, fullName)
	return j
}

// Dependency parse states.
const (
	ParseStatePending  = "pending"
	ParseStatePolling  = "polling"
	ParseStateComplete = "complete"
	ParseStateError    = "error"
)

// ParseDependenciesJob starts the parse state machine for a repository.
func ParseDependenciesJob(repositoryID int64) Job {
	id := strconv.FormatInt(repositoryID, 10)
	j := NewJob(KindParseDependencies, map[string]string{"repository_id": id, "state": ParseStatePending})
	j.UniqueKey = KindParseDependencies + ":" + id
	return j
}

// PollDependenciesJob re-enters the parse state machine in the polling state.
func PollDependenciesJob(repositoryID int64, parseJobID string, polls int) Job {
	return NewJob(KindParseDependencies, map[string]string{
		"repository_id": strconv.FormatInt(repositoryID, 10),
		"state":         ParseStatePolling,
		"parse_job_id":  parseJobID,
		"polls":         strconv.Itoa(polls),
	})
}

// SyncRecentJob queues syncs for a host's recently changed repositories.
func SyncRecentJob(hostName string) Job {
	return NewJob(KindSyncRecent, map[string]string{"host": hostName})
}

// CrawlJob advances a host's crawl by one page.
func CrawlJob(hostName string) Job {
	return NewJob(KindCrawl, map[string]string{"host": hostName})
}
