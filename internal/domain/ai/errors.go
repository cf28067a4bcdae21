package ai

import "errors"

// ErrQuotaExceeded indicates the AI provider returned a quota/limit error (HTTP 429 or similar).
var ErrQuotaExceeded = errors.New("ai quota exceeded")

// ErrNothingToAnalyze is returned for scans that have not finished or have no findings.
var ErrNothingToAnalyze = errors.New("scan has nothing to analyze")
