package app

import (
	"fmt"
	"path/filepath"
)

func checkWatchDir(documentsDir, dir string) error {
	want, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	docs, err := filepath.Abs(documentsDir)
	if err != nil {
		return err
	}
	if filepath.Clean(want) == filepath.Clean(docs) {
		return fmt.Errorf("%w: %s", ErrNoDocumentsDir, dir)
	}
	return nil
}
