package redis

import "strings"

const (
	// Connection row fields.
	fieldRoundID     = "round_id"
	fieldDisplayName = "display_name"
	fieldHasAnswered = "has_answered"

	// Round row fields.
	fieldMemberCount  = "member_count"
	fieldPendingCount = "pending_question_count"
	fieldPhase        = "phase"
	fieldAnswerer     = "answerer"

	// Question row fields.
	fieldText     = "text"
	fieldAuthorID = "author_id"
)

const scanCount = 100

func connectionKey(connID string) string {
	return "connection:" + connID
}

func roundKey(roundID string) string {
	return "round:" + roundID
}

func questionKey(roundID, questionID string) string {
	return "question:" + roundID + ":" + questionID
}

func questionPattern(roundID string) string {
	return "question:" + roundID + ":*"
}

// uniqueKeys filters one SCAN page against the keys already seen. SCAN may
// return a key more than once across a rehash; callers feed every page through
// the same seen set so projections never contain duplicates.
func uniqueKeys(seen map[string]struct{}, keys []string) []string {
	fresh := keys[:0]
	for _, k := range keys {
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		fresh = append(fresh, k)
	}
	return fresh
}

// splitQuestionKey recovers (roundID, questionID) from a question row key.
// Question ids are UUIDs and never contain a colon, so the last separator
// always delimits the id.
func splitQuestionKey(key string) (roundID, questionID string, ok bool) {
	rest, found := strings.CutPrefix(key, "question:")
	if !found {
		return "", "", false
	}
	i := strings.LastIndex(rest, ":")
	if i < 0 {
		return "", "", false
	}
	return rest[:i], rest[i+1:], true
}
