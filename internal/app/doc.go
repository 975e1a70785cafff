// Package app provides the application service layer.
//
// Service is the round state machine: it is the only component that touches
// directory, round counters, question pool and fanout together. Every client
// action maps to one Service method; broadcasts are side effects, the returned
// error (or nil) becomes the caller's single reply.
package app
