//go:build !linux

package journal

func detectFilesystemType(string) (string, error) {
	return "", errDetectUnsupported
}
