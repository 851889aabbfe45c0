package files

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/BioHazard786/warpmesh/internal/transfer"
	"github.com/BioHazard786/warpmesh/internal/utils"
)

const zipMediaType = "application/zip"

// FileInfo holds information about a path to be sent
type FileInfo struct {
	// Path is the absolute path to the file or directory
	Path string

	// Name is the name peers will see. Directories get a .zip suffix.
	Name string

	// Size is the file size in bytes, 0 for directories until archived
	Size int64

	// Type is the MIME type (e.g., "application/pdf", "text/plain")
	Type string

	IsDir bool
}

// ValidateFiles checks if all paths exist and are readable
// Returns a list of FileInfo for valid paths and an error if any path is invalid
func ValidateFiles(filePaths []string) ([]FileInfo, error) {
	if len(filePaths) == 0 {
		return nil, fmt.Errorf("no files specified")
	}

	var fileInfos []FileInfo
	var problems []string

	for _, path := range filePaths {
		fileInfo, err := validateSingleFile(path)
		if err != nil {
			problems = append(problems, err.Error())
			continue
		}
		fileInfos = append(fileInfos, fileInfo)
	}

	if len(problems) > 0 {
		return nil, fmt.Errorf("file validation failed:\n  - %s", strings.Join(problems, "\n  - "))
	}

	return fileInfos, nil
}

func validateSingleFile(path string) (FileInfo, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return FileInfo{}, fmt.Errorf("%s: failed to get absolute path: %w", path, err)
	}

	stat, err := os.Stat(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return FileInfo{}, fmt.Errorf("%s: file does not exist", path)
		}
		return FileInfo{}, fmt.Errorf("%s: failed to stat file: %w", path, err)
	}

	name := filepath.Base(absPath)
	if stat.IsDir() {
		return FileInfo{Path: absPath, Name: name + ".zip", Type: zipMediaType, IsDir: true}, nil
	}

	// Empty payloads are never announced to peers.
	if stat.Size() == 0 {
		return FileInfo{}, fmt.Errorf("%s: file is empty", path)
	}

	file, err := os.Open(absPath)
	if err != nil {
		return FileInfo{}, fmt.Errorf("%s: cannot open file (check permissions): %w", path, err)
	}
	file.Close()

	mimeType := mime.TypeByExtension(filepath.Ext(absPath))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	return FileInfo{
		Path: absPath,
		Name: name,
		Size: stat.Size(),
		Type: mimeType,
	}, nil
}

// Load reads a validated path into memory, archiving directories.
func Load(info FileInfo) (transfer.OutgoingFile, error) {
	var (
		data []byte
		err  error
	)
	if info.IsDir {
		data, err = utils.ZipDirectory(info.Path)
	} else {
		data, err = os.ReadFile(info.Path)
	}
	if err != nil {
		return transfer.OutgoingFile{}, fmt.Errorf("%s: %w", info.Name, err)
	}
	if len(data) == 0 {
		return transfer.OutgoingFile{}, fmt.Errorf("%s: %w", info.Name, transfer.ErrInvalidFile)
	}
	return transfer.OutgoingFile{Name: info.Name, MediaType: info.Type, Data: data}, nil
}

// LoadAll validates and loads every path.
func LoadAll(paths []string) ([]transfer.OutgoingFile, error) {
	infos, err := ValidateFiles(paths)
	if err != nil {
		return nil, err
	}
	out := make([]transfer.OutgoingFile, 0, len(infos))
	for _, info := range infos {
		f, err := Load(info)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

// GetTotalSize returns the total size of all files
func GetTotalSize(files []transfer.OutgoingFile) int64 {
	var total int64
	for _, f := range files {
		total += int64(len(f.Data))
	}
	return total
}
