// Package queue holds pending category refresh jobs for the download
// dispatcher. Manual requests jump ahead of scheduled ones, and a
// category already waiting is never enqueued twice.
package queue
