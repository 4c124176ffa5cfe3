package main

// DownloadProgressMsg carries a progress update from a running download.
type DownloadProgressMsg struct {
	Current float64
	Total   float64
	Message string
}

// DownloadDoneMsg signals that the download finished and names the output file.
type DownloadDoneMsg struct {
	Path string
}

// DownloadErrorMsg indicates the download failed.
type DownloadErrorMsg struct {
	Err error
}
