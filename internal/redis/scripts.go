package redis

import goredis "github.com/redis/go-redis/v9"

// Lua scripts for the two transitions that must not be split across round
// trips: claiming the start of a round and consuming a question.

// claimStartScript flips the round's phase to answering and records the
// answerer, but only if no other caller already did. This is the single-writer
// guard for the start transition: of two concurrent start requests, exactly one
// sees 1.
// KEYS: [1]=round key. ARGV: [1]=answerer display name
var claimStartScript = goredis.NewScript(`
local phase = redis.call('HGET', KEYS[1], 'phase')
if phase == 'answering' then
	return 0
end
redis.call('HSET', KEYS[1], 'phase', 'answering', 'answerer', ARGV[1])
return 1
`)

// consumeQuestionScript atomically removes a question row and decrements the
// owning round's pending counter, returning the question content. A nil reply
// means the question was already consumed; the counter is left untouched in
// that case so a lost race never double-decrements.
// KEYS: [1]=question key, [2]=round key
var consumeQuestionScript = goredis.NewScript(`
local text = redis.call('HGET', KEYS[1], 'text')
if not text then
	return false
end
local author = redis.call('HGET', KEYS[1], 'author_id')
redis.call('DEL', KEYS[1])
local pending = redis.call('HINCRBY', KEYS[2], 'pending_question_count', -1)
return {text, author or '', pending}
`)
