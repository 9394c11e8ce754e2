package pipeline

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/YuminosukeSato/creditrisk/core/model"
	"github.com/YuminosukeSato/creditrisk/pkg/errors"
	"github.com/YuminosukeSato/creditrisk/pkg/log"
)

// Artifact blobs start with magic followed by a big-endian uint16 format
// version; the gob-encoded Artifact follows.
var magic = []byte("CRISKART")

// FormatVersion is bumped whenever Artifact's encoded layout changes
// incompatibly.
const FormatVersion uint16 = 1

const headerLen = 8 + 2

// Marshal encodes a as an opaque blob.
func Marshal(a *Artifact) ([]byte, error) {
	if a == nil || a.Model == nil || !a.Model.IsFitted() {
		return nil, errors.NewNotFittedError("Pipeline", "Marshal")
	}
	var buf bytes.Buffer
	buf.Write(magic)
	if err := binary.Write(&buf, binary.BigEndian, FormatVersion); err != nil {
		return nil, errors.NewSerializationError("Marshal", err)
	}
	if err := gob.NewEncoder(&buf).Encode(a); err != nil {
		return nil, errors.NewSerializationError("Marshal", err)
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes a blob produced by Marshal. Truncated, corrupt or
// incompatible blobs yield a SerializationError.
func Unmarshal(data []byte) (*Artifact, error) {
	if len(data) < headerLen {
		return nil, errors.NewSerializationError("Unmarshal",
			fmt.Errorf("blob is %d bytes, shorter than the %d-byte header", len(data), headerLen))
	}
	if !bytes.Equal(data[:len(magic)], magic) {
		return nil, errors.NewSerializationError("Unmarshal", fmt.Errorf("not a creditrisk artifact (bad magic)"))
	}
	if v := binary.BigEndian.Uint16(data[len(magic):headerLen]); v != FormatVersion {
		return nil, errors.NewSerializationError("Unmarshal",
			fmt.Errorf("artifact format version %d is not supported (want %d)", v, FormatVersion))
	}

	var a Artifact
	if err := errors.SafeExecute("Unmarshal", func() error {
		return gob.NewDecoder(bytes.NewReader(data[headerLen:])).Decode(&a)
	}); err != nil {
		return nil, errors.NewSerializationError("Unmarshal", err)
	}
	if a.Schema == nil || a.Preprocessor == nil || a.Model == nil || !a.Model.IsFitted() {
		return nil, errors.NewSerializationError("Unmarshal", fmt.Errorf("artifact is incomplete"))
	}
	return &a, nil
}

// SaveFile atomically replaces path with the encoded artifact.
func SaveFile(path string, a *Artifact) error {
	data, err := Marshal(a)
	if err != nil {
		return err
	}
	if err := model.WriteFileAtomic(path, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	}); err != nil {
		return err
	}
	log.GetLoggerWithName("pipeline").Info("artifact saved",
		log.OperationKey, log.OperationSave,
		log.ArtifactIDKey, a.ID,
		log.PathKey, path,
	)
	return nil
}

// LoadFile reads an artifact written by SaveFile. A missing, empty or
// truncated file is a SerializationError.
func LoadFile(path string) (*Artifact, error) {
	start := time.Now()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewSerializationError("LoadFile", err)
	}
	a, err := Unmarshal(data)
	if err != nil {
		return nil, errors.Wrapf(err, "load %s", path)
	}
	log.GetLoggerWithName("pipeline").Info("artifact loaded",
		log.OperationKey, log.OperationLoad,
		log.ArtifactIDKey, a.ID,
		log.PathKey, path,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return a, nil
}
