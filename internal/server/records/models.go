package records

import "time"

// Record is the metadata kept for one stored file.
type Record struct {
	ID            string
	OriginalName  string // client supplied, display only
	StoredName    string // server generated name inside the storage directory
	Size          int64
	MimeType      string
	Checksum      string // hex BLAKE2b-256 of the stored bytes
	UploadedAt    time.Time
	DownloadCount int64
}

// Stats holds aggregate figures over every record in a store.
type Stats struct {
	TotalFiles     int64
	TotalDownloads int64
	StorageUsed    int64
}
