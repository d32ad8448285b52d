package encoding

import (
	"bytes"
	"sync"
	"testing"
	"time"
)

type tableRecord struct {
	Table   string    `msgpack:"table"`
	Rows    int64     `msgpack:"rows"`
	MinKey  []byte    `msgpack:"min_key"`
	Written time.Time `msgpack:"written"`
}

func TestMarshal_StructPreservesBytes(t *testing.T) {
	in := tableRecord{
		Table:   "impi",
		Rows:    3,
		MinKey:  []byte{0x00, 0xff, 0x01},
		Written: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}

	data, err := Marshal(in)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var out tableRecord
	if err := Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if out.Table != in.Table || out.Rows != in.Rows {
		t.Errorf("Expected %+v, got %+v", in, out)
	}
	if !bytes.Equal(out.MinKey, in.MinKey) {
		t.Errorf("Expected key %x, got %x", in.MinKey, out.MinKey)
	}
	if !out.Written.Equal(in.Written) {
		t.Errorf("Expected time %v, got %v", in.Written, out.Written)
	}
}

func TestUnmarshal_InterfaceKeepsStrings(t *testing.T) {
	data, err := Marshal(map[string]interface{}{"profile": "memento"})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var out interface{}
	if err := Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	m, ok := out.(map[string]interface{})
	if !ok {
		t.Fatalf("Expected map, got %T", out)
	}
	if _, ok := m["profile"].(string); !ok {
		t.Errorf("Expected string value, got %T", m["profile"])
	}
}

func TestWriteRead_Stream(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, tableRecord{Table: "impu", Rows: 1}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := Write(&buf, tableRecord{Table: "impi", Rows: 2}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	var first, second tableRecord
	r := bytes.NewReader(buf.Bytes())
	if err := Read(r, &first); err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if err := Read(r, &second); err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if first.Table != "impu" || second.Table != "impi" {
		t.Errorf("Unexpected stream order: %s, %s", first.Table, second.Table)
	}
}

func TestMarshal_Concurrent(t *testing.T) {
	var wg sync.WaitGroup
	errs := make(chan error, 50)

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			data, err := Marshal(tableRecord{Rows: int64(n)})
			if err != nil {
				errs <- err
				return
			}
			var out tableRecord
			if err := Unmarshal(data, &out); err != nil {
				errs <- err
				return
			}
			if out.Rows != int64(n) {
				t.Errorf("Expected %d rows, got %d", n, out.Rows)
			}
		}(i)
	}

	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("Concurrent encode failed: %v", err)
	}
}
