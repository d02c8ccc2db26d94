package storage

import "errors"

// ErrScanNotFound is returned when a scan is not found.
var ErrScanNotFound = errors.New("scan not found")
