// Package middleware provides the ordered interceptor pipeline that runs
// around every state transition, plus the built-in logging, persistence and
// time-travel stages.
//
// The pipeline is a chain-of-responsibility: each stage receives the mutation
// Context and a next continuation, and must call next to let the chain (and
// ultimately the commit at its tail) proceed. Stages that never call next
// veto the mutation. Stage errors propagate to the mutation's initiator
// untouched.
package middleware
