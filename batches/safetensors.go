package batches

import (
	"encoding/binary"
	"encoding/json"
	"io"
	"sort"

	"github.com/gomlx/go-tagging-eval/tagging"
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/pkg/errors"
	"golang.org/x/exp/mmap"
	"k8s.io/klog/v2"
)

// Names of the tensors of an evaluation dump.
const (
	LossTensor        = "loss"
	LabelsTensor      = "labels"
	PredictionsTensor = "predictions"
	LabelsMaskTensor  = "labels_mask"
)

// Header represents the JSON header of a safetensors file.
type Header struct {
	Tensors  map[string]*TensorMetadata // Tensor name -> metadata
	Metadata map[string]string          // Optional __metadata__ field
}

// TensorMetadata represents metadata for a single tensor in a safetensors file.
type TensorMetadata struct {
	Name        string   `json:"-"`            // Tensor name (from map key)
	Dtype       string   `json:"dtype"`        // Data type: F32, F64, I32, I64, etc.
	Shape       []int    `json:"shape"`        // Tensor dimensions
	DataOffsets [2]int64 `json:"data_offsets"` // [start, end] byte offsets relative to the data section
}

// maxHeaderSize bounds the JSON header of an evaluation dump.
const maxHeaderSize = 100 * 1024 * 1024

// readHeader decodes the header of a memory-mapped dump laid out as
//
//	[8 bytes: little-endian u64 n][n bytes: JSON header][tensor data]
//
// and returns it along with the offset of the data section. Every tensor's
// byte range must lie within the data section.
func readHeader(r *mmap.ReaderAt) (*Header, int64, error) {
	fileSize := int64(r.Len())
	var sizeBytes [8]byte
	if _, err := r.ReadAt(sizeBytes[:], 0); err != nil {
		return nil, 0, errors.Wrapf(err, "file of %d bytes too short for the header size", fileSize)
	}
	jsonSize := binary.LittleEndian.Uint64(sizeBytes[:])
	if jsonSize > maxHeaderSize || int64(jsonSize) > fileSize-8 {
		return nil, 0, errors.Errorf("invalid header size %d for a file of %d bytes", jsonSize, fileSize)
	}
	dataOffset := 8 + int64(jsonSize)
	jsonBytes := make([]byte, jsonSize)
	if _, err := r.ReadAt(jsonBytes, 8); err != nil {
		return nil, 0, errors.Wrap(err, "failed to read header JSON")
	}

	var entries map[string]json.RawMessage
	if err := json.Unmarshal(jsonBytes, &entries); err != nil {
		return nil, 0, errors.Wrap(err, "failed to parse header JSON")
	}
	header := &Header{
		Tensors:  make(map[string]*TensorMetadata, len(entries)),
		Metadata: make(map[string]string),
	}
	dataSize := fileSize - dataOffset
	for name, entry := range entries {
		if name == "__metadata__" {
			if err := json.Unmarshal(entry, &header.Metadata); err != nil {
				return nil, 0, errors.Wrap(err, "failed to parse __metadata__")
			}
			continue
		}
		meta := &TensorMetadata{Name: name}
		if err := json.Unmarshal(entry, meta); err != nil {
			return nil, 0, errors.Wrapf(err, "failed to parse metadata of tensor %s", name)
		}
		begin, end := meta.DataOffsets[0], meta.DataOffsets[1]
		if begin < 0 || end < begin || end > dataSize {
			return nil, 0, errors.Errorf("tensor %s data range [%d, %d) outside the %d bytes of tensor data",
				name, begin, end, dataSize)
		}
		header.Tensors[name] = meta
	}
	return header, dataOffset, nil
}

// safetensorToGoMLXDtype maps safetensor dtype names to GoMLX dtype names.
var safetensorToGoMLXDtype = map[string]string{
	"I8":   "Int8",
	"I16":  "Int16",
	"I32":  "Int32",
	"I64":  "Int64",
	"U8":   "Uint8",
	"U16":  "Uint16",
	"U32":  "Uint32",
	"U64":  "Uint64",
	"F32":  "Float32",
	"F64":  "Float64",
	"BOOL": "Bool",
}

func dtypeToGoMLX(stDtype string) (dtypes.DType, error) {
	if gomlxName, found := safetensorToGoMLXDtype[stDtype]; found {
		if dtype, found := dtypes.MapOfNames[gomlxName]; found {
			return dtype, nil
		}
	}
	return dtypes.InvalidDType, errors.Errorf("dtype %q not supported in evaluation dumps", stDtype)
}

// SafetensorsFile is an evaluation dump stored in the safetensors format, memory-mapped.
//
// It holds the tensors "loss", "labels", "predictions" and "labels_mask" of one
// evaluation step (see FromTensors for their shapes).
type SafetensorsFile struct {
	Path   string
	Header *Header

	reader     *mmap.ReaderAt
	dataOffset int64
}

// OpenSafetensors memory-maps the file at path and parses its header.
// The caller must Close it.
func OpenSafetensors(path string) (*SafetensorsFile, error) {
	reader, err := mmap.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to mmap %s", path)
	}
	header, dataOffset, err := readHeader(reader)
	if err != nil {
		_ = reader.Close()
		return nil, errors.WithMessagef(err, "while opening %s", path)
	}
	return &SafetensorsFile{Path: path, Header: header, reader: reader, dataOffset: dataOffset}, nil
}

// Close closes the underlying memory-mapped file.
func (f *SafetensorsFile) Close() error {
	return f.reader.Close()
}

// TensorNames returns the names of the tensors in the file, sorted.
func (f *SafetensorsFile) TensorNames() []string {
	names := make([]string, 0, len(f.Header.Tensors))
	for name := range f.Header.Tensors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ReadTensor reads a tensor by name from the memory-mapped file.
func (f *SafetensorsFile) ReadTensor(tensorName string) (*tensors.Tensor, error) {
	meta, ok := f.Header.Tensors[tensorName]
	if !ok {
		return nil, errors.Errorf("tensor %s not found in %s", tensorName, f.Path)
	}
	dtype, err := dtypeToGoMLX(meta.Dtype)
	if err != nil {
		return nil, errors.WithMessagef(err, "tensor %s", tensorName)
	}

	t := tensors.FromShape(shapes.Make(dtype, meta.Shape...))
	tensorOffset := f.dataOffset + meta.DataOffsets[0]
	var readErr error
	t.MutableBytes(func(data []byte) {
		if int64(len(data)) != meta.DataOffsets[1]-meta.DataOffsets[0] {
			readErr = errors.Errorf("tensor %s shape %s expected %d bytes, but header offsets give %d bytes",
				tensorName, t.Shape(), len(data), meta.DataOffsets[1]-meta.DataOffsets[0])
			return
		}
		if tensorOffset+int64(len(data)) > int64(f.reader.Len()) {
			readErr = errors.Errorf("tensor %s data ends at byte %d, past the end of %s (%d bytes)",
				tensorName, tensorOffset+int64(len(data)), f.Path, f.reader.Len())
			return
		}
		n, err := f.reader.ReadAt(data, tensorOffset)
		if err == nil && n != len(data) {
			err = io.ErrUnexpectedEOF
		}
		if err != nil {
			readErr = errors.Wrapf(err, "failed to read tensor %s (%d of %d bytes)", tensorName, n, len(data))
		}
	})
	if readErr != nil {
		return nil, readErr
	}
	return t, nil
}

// Batch reads the four evaluation tensors and converts them with FromTensors.
func (f *SafetensorsFile) Batch() (tagging.Batch, error) {
	names := []string{LossTensor, LabelsTensor, PredictionsTensor, LabelsMaskTensor}
	ts := make([]*tensors.Tensor, len(names))
	for i, name := range names {
		var err error
		if ts[i], err = f.ReadTensor(name); err != nil {
			return tagging.Batch{}, err
		}
	}
	batch, err := FromTensors(ts[0], ts[1], ts[2], ts[3])
	if err != nil {
		return tagging.Batch{}, errors.WithMessagef(err, "in %s", f.Path)
	}
	return batch, nil
}

// IterSafetensors yields one batch per evaluation dump, in the order of paths.
// Each file is mapped only while its batch is being read.
func IterSafetensors(paths ...string) func(yield func(tagging.Batch, error) bool) {
	return func(yield func(tagging.Batch, error) bool) {
		for _, path := range paths {
			f, err := OpenSafetensors(path)
			if err != nil {
				yield(tagging.Batch{}, err)
				return
			}
			batch, err := f.Batch()
			if closeErr := f.Close(); err == nil && closeErr != nil {
				err = errors.Wrapf(closeErr, "failed to close %s", path)
			}
			if err != nil {
				yield(tagging.Batch{}, err)
				return
			}
			klog.V(1).Infof("read batch of %d examples from %s", batch.Size(), path)
			if !yield(batch, nil) {
				return
			}
		}
	}
}
