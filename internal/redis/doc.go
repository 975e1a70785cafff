// Package redis implements the Redis-backed stores.
//
// Provides the ConnectionDirectory (hash row per connection), RoundRepository
// (counter row per round, Lua claim for the start transition), and QuestionPool
// (hash row per question, Lua consume for atomic delete-and-return). Counter
// updates go through HINCRBY only; membership projections use cursor SCANs.
package redis
