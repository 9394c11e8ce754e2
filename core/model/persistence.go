package model

import (
	"encoding/gob"
	"io"
	"os"
	"path/filepath"

	crerrors "github.com/YuminosukeSato/creditrisk/pkg/errors"
)

// SaveModel はモデルをファイルに保存する
//
// 一時ファイルに書き込んでからリネームするため、読み込み側が
// 書き込み途中のファイルを観測することはない。
//
// 使用例:
//
//	err := model.SaveModel(artifact, "models/model.gob")
func SaveModel(model interface{}, filename string) error {
	return WriteFileAtomic(filename, func(w io.Writer) error {
		return SaveModelToWriter(model, w)
	})
}

// LoadModel はファイルからモデルを読み込む
//
// 使用例:
//
//	var artifact pipeline.Artifact
//	err := model.LoadModel(&artifact, "models/model.gob")
func LoadModel(model interface{}, filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return crerrors.Wrapf(err, "failed to open model file %s", filename)
	}
	defer file.Close()

	return LoadModelFromReader(model, file)
}

// SaveModelToWriter はモデルをio.Writerにgob形式で保存する
func SaveModelToWriter(model interface{}, w io.Writer) error {
	encoder := gob.NewEncoder(w)
	if err := encoder.Encode(model); err != nil {
		return crerrors.NewSerializationError("SaveModelToWriter", err)
	}
	return nil
}

// LoadModelFromReader はio.Readerからモデルを読み込む
//
// 破損したバイト列は SerializationError になる。
func LoadModelFromReader(model interface{}, r io.Reader) error {
	decoder := gob.NewDecoder(r)
	if err := decoder.Decode(model); err != nil {
		return crerrors.NewSerializationError("LoadModelFromReader", err)
	}
	return nil
}

// WriteFileAtomic writes filename through a temporary file in the same
// directory and renames it into place once write succeeds.
func WriteFileAtomic(filename string, write func(w io.Writer) error) (err error) {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return crerrors.Wrapf(err, "failed to create directory %s", dir)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(filename)+".*.tmp")
	if err != nil {
		return crerrors.Wrap(err, "failed to create temporary file")
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if err = write(tmp); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return crerrors.Wrap(err, "failed to sync temporary file")
	}
	if err = tmp.Close(); err != nil {
		return crerrors.Wrap(err, "failed to close temporary file")
	}
	if err = os.Rename(tmp.Name(), filename); err != nil {
		return crerrors.Wrapf(err, "failed to replace %s", filename)
	}
	return nil
}
