package main

import (
	"bytes"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

type csvHeaderStructMapping struct {
	header    string // key in CSV header
	structTag string // borrow JSON struct tag for CSV
}

type csvSchema struct {
	keys  map[int]csvHeaderStructMapping
	delim string
}

func (csv csvSchema) header() []byte {
	var buf = new(bytes.Buffer)
	for i := 0; i < len(csv.keys); i++ {
		_, _ = buf.WriteString(csv.keys[i].header)
		if i < len(csv.keys)-1 {
			_, _ = buf.WriteString(csv.delim)
		}
	}
	return buf.Bytes()
}

var (
	// ErrUnsupportedType is returned when a type is not supported during CSV reflection.
	ErrUnsupportedType = errors.New("unsupported type")
	// ErrNilPointer is returned when a pointer is nil during CSV reflection.
	ErrNilPointer = errors.New("nil pointer")
)

// jsonName strips options such as omitempty from a json struct tag.
func jsonName(tag string) string {
	name, _, _ := strings.Cut(tag, ",")
	return name
}

func (csv csvSchema) parse(in any) ([]byte, error) {
	var buf = new(bytes.Buffer)
	write := func(s string) { _, _ = buf.WriteString(s) }
	ref := reflect.ValueOf(in)
	if ref.Kind() == reflect.Ptr && ref.IsNil() {
		return nil, ErrNilPointer
	}
	if ref.Kind() == reflect.Ptr {
		ref = ref.Elem()
	}

	var finErr error

outerIter:
	for i := 0; i < len(csv.keys); i++ {
		var field = reflect.ValueOf(nil)
		target, sub, _ := strings.Cut(csv.keys[i].structTag, ".")
	iter:
		for j := 0; j < ref.NumField(); j++ {
			switch jsonName(ref.Type().Field(j).Tag.Get("json")) {
			case target:
				field = ref.Field(j)
				if field.Kind() == reflect.Ptr && !field.IsNil() {
					field = field.Elem()
				}
				break iter
			default:
			}
		}

		switch {
		case !field.IsValid():
			// no such column on this struct, leave the cell empty
		case (field.Kind() == reflect.Pointer || field.Kind() == reflect.Interface) && field.IsNil():
			// nil nested struct, leave the cell empty
		default:
			switch field.Kind() {
			case reflect.String:
				write(field.String())
			case reflect.Float64:
				write(strconv.FormatFloat(field.Float(), 'f', constFloatPrecision, 64))
			case reflect.Float32:
				write(strconv.FormatFloat(field.Float(), 'f', constFloatPrecision, 32))
			case reflect.Bool:
				write(strconv.FormatBool(field.Bool()))
			case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
				write(strconv.FormatInt(field.Int(), 10))
			case reflect.Struct:
				write(field.FieldByName(sub).String())
			default:
				finErr = fmt.Errorf("csv: %w: %s", ErrUnsupportedType, field.Kind().String())
			}
		}

		if i < len(csv.keys)-1 {
			write(csv.delim)
		}

		if i == len(csv.keys)-1 {
			write("\n")
		}

		if finErr != nil {
			break outerIter
		}
	}

	return buf.Bytes(), finErr
}

// (path, entropy)
var defCSVHeader = csvSchema{
	keys: map[int]csvHeaderStructMapping{
		0: {"path", "path"},
		1: {"entropy", "entropy"},
	},
	delim: constDelimeterDefault,
}

// (target, total, mean, median, variance)
var statsCSVHeader = csvSchema{
	keys: map[int]csvHeaderStructMapping{
		0: {"target", "target"},
		1: {"total", "total"},
		2: {"mean", "mean"},
		3: {"median", "median"},
		4: {"variance", "variance"},
	},
	delim: constDelimeterDefault,
}

// withHashers returns a copy of csv with a checksum column appended for each hash type.
func (csv csvSchema) withHashers(types ...HashType) csvSchema {
	keys := make(map[int]csvHeaderStructMapping, len(csv.keys)+len(types))
	for k, v := range csv.keys {
		keys[k] = v
	}
	for _, ht := range types {
		keys[len(keys)] = csvHeaderStructMapping{ht.String(), "checksums." + strings.ToUpper(ht.String())}
	}
	return csvSchema{keys: keys, delim: csv.delim}
}

// withDelimiter returns a copy of csv using delim between cells.
func (csv csvSchema) withDelimiter(delim string) csvSchema {
	csv.delim = delim
	return csv
}
