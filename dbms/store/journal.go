package store

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/btree-query-bench/vlogdb/dbms/codec"
)

// Journal is the line-oriented log of operations applied since the last
// GC. It lets Open rebuild tables whose snapshots are older than their
// value logs.
//
// Line format, every field a codec token:
//
//	INSERT <table> <key tuple> <row value>...
//	DELETE <table> <key tuple>
type Journal struct {
	file   *os.File
	writer *bufio.Writer
	path   string
}

type OpKind string

const (
	OpInsert OpKind = "INSERT"
	OpDelete OpKind = "DELETE"
)

// Op is one journaled table operation.
type Op struct {
	Kind  OpKind
	Table string
	Key   []string
	Row   []string // OpInsert only
}

func (op Op) encode() string {
	fields := []string{string(op.Kind), codec.String{}.Encode(op.Table), codec.Tuple.Encode(op.Key)}
	if op.Kind == OpInsert {
		fields = append(fields, encodeRow(op.Row)...)
	}
	return strings.Join(fields, " ") + "\n"
}

func decodeOp(line string) (Op, error) {
	var op Op
	fields := strings.Fields(line)
	if len(fields) < 3 {
		return op, errors.Newf("want at least 3 fields, got %d", len(fields))
	}
	op.Kind = OpKind(fields[0])
	switch op.Kind {
	case OpInsert:
	case OpDelete:
		if len(fields) != 3 {
			return op, errors.Newf("DELETE with %d fields", len(fields))
		}
	default:
		return op, errors.Wrapf(ErrUnknownOp, "%q", fields[0])
	}

	var err error
	if op.Table, err = (codec.String{}).Decode(fields[1]); err != nil {
		return op, err
	}
	if op.Key, err = codec.Tuple.Decode(fields[2]); err != nil {
		return op, err
	}
	if op.Kind == OpInsert {
		if op.Row, err = decodeRow(fields[3:]); err != nil {
			return op, err
		}
	}
	return op, nil
}

// OpenJournal opens or creates the journal at path for appending.
func OpenJournal(path string) (*Journal, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "store: open journal %s", path)
	}
	return &Journal{
		file:   file,
		writer: bufio.NewWriter(file),
		path:   path,
	}, nil
}

// Append writes op and hands it to the OS before returning.
func (j *Journal) Append(op Op) error {
	if _, err := j.writer.WriteString(op.encode()); err != nil {
		return errors.Wrapf(err, "store: journal append")
	}
	return errors.Wrapf(j.writer.Flush(), "store: journal append")
}

// Reset discards every journaled op. Called once their effects are
// persisted by a GC.
func (j *Journal) Reset() error {
	j.writer.Reset(j.file)
	if err := j.file.Truncate(0); err != nil {
		return errors.Wrapf(err, "store: journal reset")
	}
	return errors.Wrapf(j.file.Sync(), "store: journal reset")
}

func (j *Journal) Sync() error {
	if err := j.writer.Flush(); err != nil {
		return err
	}
	return j.file.Sync()
}

func (j *Journal) Path() string { return j.path }

func (j *Journal) Close() error {
	err := j.writer.Flush()
	return errors.CombineErrors(err, j.file.Close())
}

// RecoverJournal reads all ops from the journal for replay. A missing
// journal recovers nothing. A torn final line, left by a crash mid-append,
// is ignored.
func RecoverJournal(path string) ([]Op, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil // No journal to recover
		}
		return nil, errors.Wrapf(err, "store: recover journal")
	}
	defer file.Close()

	var ops []Op
	r := bufio.NewReader(file)
	for lineNo := 1; ; lineNo++ {
		line, err := r.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, errors.Wrapf(err, "store: recover journal")
		}
		torn := errors.Is(err, io.EOF)
		if strings.TrimSpace(line) != "" {
			op, perr := decodeOp(line)
			switch {
			case perr == nil:
				ops = append(ops, op)
			case !torn:
				return nil, errors.Wrapf(perr, "store: journal %s line %d", path, lineNo)
			}
		}
		if torn {
			return ops, nil
		}
	}
}

func encodeRow(row []string) []string {
	tokens := make([]string, len(row))
	for i, v := range row {
		tokens[i] = codec.String{}.Encode(v)
	}
	return tokens
}

func decodeRow(tokens []string) ([]string, error) {
	row := make([]string, len(tokens))
	for i, tok := range tokens {
		v, err := codec.String{}.Decode(tok)
		if err != nil {
			return nil, errors.Wrapf(err, "column %d", i)
		}
		row[i] = v
	}
	return row, nil
}
