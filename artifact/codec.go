package artifact

import (
	"math"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/tsawler/go-continual/dataset"
)

// FormatVersion is written into every encoded artifact
const FormatVersion = 1

// Wire layout. Floats are packed fixed64 so values round-trip bit-identically.
//
//	Artifact: 1 name, 2 data_type, 3 entries (Entry), 4 config (google.protobuf.Struct), 5 version
//	Entry:    1 model, 2 metric, 3 kind, 4 key, 5 value_type, 6 values (Floats, repeated)
//	Floats:   1 data (packed fixed64)
const (
	fieldArtifactName     protowire.Number = 1
	fieldArtifactDataType protowire.Number = 2
	fieldArtifactEntry    protowire.Number = 3
	fieldArtifactConfig   protowire.Number = 4
	fieldArtifactVersion  protowire.Number = 5

	fieldEntryModel     protowire.Number = 1
	fieldEntryMetric    protowire.Number = 2
	fieldEntryKind      protowire.Number = 3
	fieldEntryKey       protowire.Number = 4
	fieldEntryValueType protowire.Number = 5
	fieldEntryValues    protowire.Number = 6

	fieldFloatsData protowire.Number = 1
)

type valueType uint64

const (
	valueSeries valueType = iota + 1
	valueBaseline
	valueTaskPredictions
)

// Marshal encodes an artifact. The output is deterministic: entries are
// written in key order and the config struct is marshaled deterministically.
func Marshal(a *Artifact) ([]byte, error) {
	cfg, err := a.ConfigStruct()
	if err != nil {
		return nil, err
	}
	cfgBytes, err := proto.MarshalOptions{Deterministic: true}.Marshal(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal config")
	}

	var b []byte
	b = protowire.AppendTag(b, fieldArtifactVersion, protowire.VarintType)
	b = protowire.AppendVarint(b, FormatVersion)
	b = protowire.AppendTag(b, fieldArtifactName, protowire.BytesType)
	b = protowire.AppendString(b, a.Name)
	b = protowire.AppendTag(b, fieldArtifactDataType, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(a.DataType))

	for _, k := range a.Keys() {
		entry, err := marshalEntry(k, a.entries[k])
		if err != nil {
			return nil, err
		}
		b = protowire.AppendTag(b, fieldArtifactEntry, protowire.BytesType)
		b = protowire.AppendBytes(b, entry)
	}

	b = protowire.AppendTag(b, fieldArtifactConfig, protowire.BytesType)
	b = protowire.AppendBytes(b, cfgBytes)
	return b, nil
}

func marshalEntry(k Key, v Value) ([]byte, error) {
	var vt valueType
	var rows [][]float64
	switch v := v.(type) {
	case Series:
		vt, rows = valueSeries, [][]float64{v}
	case Baseline:
		vt, rows = valueBaseline, [][]float64{v}
	case TaskPredictions:
		vt, rows = valueTaskPredictions, v
	default:
		return nil, errors.Wrapf(ErrValueKind, "%s: unsupported value %T", k, v)
	}

	var b []byte
	b = protowire.AppendTag(b, fieldEntryModel, protowire.BytesType)
	b = protowire.AppendString(b, k.Model)
	b = protowire.AppendTag(b, fieldEntryMetric, protowire.BytesType)
	b = protowire.AppendString(b, k.Metric)
	b = protowire.AppendTag(b, fieldEntryKind, protowire.BytesType)
	b = protowire.AppendString(b, string(k.Kind))
	b = protowire.AppendTag(b, fieldEntryKey, protowire.BytesType)
	b = protowire.AppendString(b, k.String())
	b = protowire.AppendTag(b, fieldEntryValueType, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(vt))
	for _, row := range rows {
		b = protowire.AppendTag(b, fieldEntryValues, protowire.BytesType)
		b = protowire.AppendBytes(b, marshalFloats(row))
	}
	return b, nil
}

func marshalFloats(values []float64) []byte {
	if len(values) == 0 {
		return nil
	}
	packed := make([]byte, 0, 8*len(values))
	for _, v := range values {
		packed = protowire.AppendFixed64(packed, math.Float64bits(v))
	}
	var b []byte
	b = protowire.AppendTag(b, fieldFloatsData, protowire.BytesType)
	return protowire.AppendBytes(b, packed)
}

// Unmarshal decodes bytes produced by Marshal. Unknown fields are skipped.
func Unmarshal(data []byte) (*Artifact, error) {
	a := New("", 0)
	var version uint64

	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, corrupt(protowire.ParseError(n), "artifact tag")
		}
		data = data[n:]

		switch {
		case num == fieldArtifactVersion && typ == protowire.VarintType:
			version, n = protowire.ConsumeVarint(data)
		case num == fieldArtifactName && typ == protowire.BytesType:
			a.Name, n = protowire.ConsumeString(data)
		case num == fieldArtifactDataType && typ == protowire.VarintType:
			var dt uint64
			dt, n = protowire.ConsumeVarint(data)
			a.DataType = dataset.DataType(dt)
		case num == fieldArtifactEntry && typ == protowire.BytesType:
			var raw []byte
			raw, n = protowire.ConsumeBytes(data)
			if n >= 0 {
				k, v, err := unmarshalEntry(raw)
				if err != nil {
					return nil, err
				}
				if err := a.Put(k, v); err != nil {
					return nil, errors.Wrapf(ErrCorrupt, "entry %s: %v", k, err)
				}
			}
		case num == fieldArtifactConfig && typ == protowire.BytesType:
			var raw []byte
			raw, n = protowire.ConsumeBytes(data)
			if n >= 0 {
				var cfg structpb.Struct
				if err := proto.Unmarshal(raw, &cfg); err != nil {
					return nil, corrupt(err, "config")
				}
				a.config = cfg.AsMap()
			}
		default:
			n = protowire.ConsumeFieldValue(num, typ, data)
		}
		if n < 0 {
			return nil, corrupt(protowire.ParseError(n), "artifact field")
		}
		data = data[n:]
	}

	if version != FormatVersion {
		return nil, errors.Wrapf(ErrCorrupt, "unsupported format version %d", version)
	}
	return a, nil
}

func unmarshalEntry(data []byte) (Key, Value, error) {
	var k Key
	var legacy string
	var vt valueType
	var rows [][]float64

	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return Key{}, nil, corrupt(protowire.ParseError(n), "entry tag")
		}
		data = data[n:]

		switch {
		case num == fieldEntryModel && typ == protowire.BytesType:
			k.Model, n = protowire.ConsumeString(data)
		case num == fieldEntryMetric && typ == protowire.BytesType:
			k.Metric, n = protowire.ConsumeString(data)
		case num == fieldEntryKind && typ == protowire.BytesType:
			var s string
			s, n = protowire.ConsumeString(data)
			k.Kind = Kind(s)
		case num == fieldEntryKey && typ == protowire.BytesType:
			legacy, n = protowire.ConsumeString(data)
		case num == fieldEntryValueType && typ == protowire.VarintType:
			var v uint64
			v, n = protowire.ConsumeVarint(data)
			vt = valueType(v)
		case num == fieldEntryValues && typ == protowire.BytesType:
			var raw []byte
			raw, n = protowire.ConsumeBytes(data)
			if n >= 0 {
				row, err := unmarshalFloats(raw)
				if err != nil {
					return Key{}, nil, err
				}
				rows = append(rows, row)
			}
		default:
			n = protowire.ConsumeFieldValue(num, typ, data)
		}
		if n < 0 {
			return Key{}, nil, corrupt(protowire.ParseError(n), "entry field")
		}
		data = data[n:]
	}

	// Entries written without the explicit triple fall back to the flat key
	if k == (Key{}) {
		parsed, err := ParseKey(legacy)
		if err != nil {
			return Key{}, nil, err
		}
		k = parsed
	} else if legacy != "" && legacy != k.String() {
		return Key{}, nil, errors.Wrapf(ErrCorrupt, "entry key %q disagrees with %s", legacy, k)
	}

	switch vt {
	case valueSeries, valueBaseline:
		if len(rows) != 1 {
			return Key{}, nil, errors.Wrapf(ErrCorrupt, "entry %s: expected 1 value row, got %d", k, len(rows))
		}
		if vt == valueSeries {
			return k, Series(rows[0]), nil
		}
		return k, Baseline(rows[0]), nil
	case valueTaskPredictions:
		if rows == nil {
			rows = [][]float64{}
		}
		return k, TaskPredictions(rows), nil
	default:
		return Key{}, nil, errors.Wrapf(ErrCorrupt, "entry %s: unknown value type %d", k, vt)
	}
}

func unmarshalFloats(data []byte) ([]float64, error) {
	out := []float64{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, corrupt(protowire.ParseError(n), "floats tag")
		}
		data = data[n:]

		if num != fieldFloatsData {
			n = protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, corrupt(protowire.ParseError(n), "floats field")
			}
			data = data[n:]
			continue
		}

		switch typ {
		case protowire.BytesType:
			packed, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, corrupt(protowire.ParseError(n), "packed floats")
			}
			data = data[n:]
			for len(packed) > 0 {
				bits, m := protowire.ConsumeFixed64(packed)
				if m < 0 {
					return nil, corrupt(protowire.ParseError(m), "packed float")
				}
				out = append(out, math.Float64frombits(bits))
				packed = packed[m:]
			}
		case protowire.Fixed64Type:
			bits, n := protowire.ConsumeFixed64(data)
			if n < 0 {
				return nil, corrupt(protowire.ParseError(n), "float")
			}
			out = append(out, math.Float64frombits(bits))
			data = data[n:]
		default:
			return nil, errors.Wrapf(ErrCorrupt, "floats: unexpected wire type %d", typ)
		}
	}
	return out, nil
}

func corrupt(err error, what string) error {
	return errors.Wrapf(ErrCorrupt, "%s: %v", what, err)
}
