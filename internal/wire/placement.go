package wire

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrUnsafeName is returned when a message name would resolve outside the
// destination root.
var ErrUnsafeName = errors.New("unsafe message name")

// SplitName splits a message name into a folder and a leaf file on the first
// "/". Remaining separators stay in the leaf. A name without "/" has an empty
// folder.
func SplitName(name string) (folder, leaf string) {
	folder, leaf, found := strings.Cut(name, "/")
	if !found {
		return "", name
	}
	return folder, leaf
}

// Place resolves where a message named name is stored under root and creates
// the folder if it is missing.
func Place(root, name string) (string, error) {
	folder, leaf := SplitName(name)
	if leaf == "" {
		return "", fmt.Errorf("%w: %q has no file name", ErrUnsafeName, name)
	}

	dir := root
	if folder != "" {
		if !filepath.IsLocal(folder) {
			return "", fmt.Errorf("%w: folder %q", ErrUnsafeName, folder)
		}
		dir = filepath.Join(root, folder)
	}

	leafPath := filepath.FromSlash(leaf)
	if !filepath.IsLocal(leafPath) {
		return "", fmt.Errorf("%w: file %q", ErrUnsafeName, leaf)
	}
	path := filepath.Join(dir, leafPath)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create folder for %q: %w", name, err)
	}
	return path, nil
}

// WriteFile decodes data and writes its payload to the placed path under root.
func WriteFile(root string, data []byte) (Message, string, error) {
	msg, err := Decode(data)
	if err != nil {
		return Message{}, "", err
	}

	path, err := Place(root, msg.Name)
	if err != nil {
		return msg, "", err
	}

	if err := os.WriteFile(path, msg.Payload, 0o644); err != nil {
		return msg, path, fmt.Errorf("failed to write %s: %w", path, err)
	}
	return msg, path, nil
}
