package assets

// Loader reads the text of one shader file.
type Loader interface {
	Load(path string) (string, error)
}
