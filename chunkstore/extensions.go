package chunkstore

// KnownExtensions is the static set of file extensions considered
// "interesting" for search relevance, a supplemental type recovered
// from the original GUI's icon/category list (the GUI itself stays
// out of scope; the search index keeps the set purely to feed its
// extension-score tie-break).
var KnownExtensions = map[string]bool{
	"txt": true, "pdf": true, "doc": true, "docx": true, "odt": true,
	"mp3": true, "flac": true, "ogg": true, "wav": true,
	"mp4": true, "mkv": true, "avi": true, "mov": true, "webm": true,
	"jpg": true, "jpeg": true, "png": true, "gif": true, "bmp": true,
	"zip": true, "rar": true, "7z": true, "tar": true, "gz": true,
	"exe": true, "iso": true,
}
