// Package upload transfers a batch of selected files to the data platform chunk by chunk.
//
// An upload is tracked as a registry.Task from the moment it starts until it is removed,
// either after the last chunk was acknowledged or after a failure. Completion is signalled
// by removal; the task's percentage never reaches 100.
package upload
