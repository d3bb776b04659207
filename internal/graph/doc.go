// Package graph turns an ordered task list into a validated forest. Every
// task has at most one predecessor, so the structure is acyclic by
// construction: a predecessor reference is only valid if it names a task
// declared earlier in the list. Fan-out groups (several tasks sharing one
// predecessor) are resolved into each node's successor list.
package graph
