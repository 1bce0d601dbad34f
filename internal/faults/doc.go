// Package faults defines the closed taxonomy of download failures and the
// classifier that maps free-text executor output onto it.
//
// Every Error carries pure derived data: whether it is retryable, how severe
// it is, the Strategy the retry engine should apply, a localized user message,
// and a technical detail string for logs. Classify never fails; text that
// matches no cue becomes KindUnknown carrying the original message.
package faults
