package remoteclient

// RecognizedTrack is the convenience projection of a recognition
// response's track metadata; the caller is free to ignore it and parse
// the raw response themselves.
type RecognizedTrack struct {
	Title      string
	ArtistName string
	CoverArt   string
}
