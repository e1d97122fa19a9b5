package domain

// CorpusFile is a regular file found in the documents directory.
type CorpusFile struct {
	// Path is the absolute file path.
	Path string

	// Name is the path relative to the documents directory, with forward
	// slashes. It is the citation name of the document.
	Name string

	// Format is the detected format, or zero when the extension is unsupported.
	Format Format

	// ContentHash is the hex SHA-256 of the file bytes. Empty for unsupported
	// and unreadable files.
	ContentHash string

	// Err is set when the file was found but could not be read.
	Err error
}

// Supported returns true if the file has a supported format.
func (f CorpusFile) Supported() bool {
	return f.Format.IsValid()
}
