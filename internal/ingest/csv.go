package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"ipcat/internal/localdb"
)

// 文档注释：解析 ipcat 数据集 CSV
// 背景：每行 start,end,owner[,url]；以 # 开头的行是注释；第一条非注释行若首列不是 IPv4 则视为表头跳过。
// 约束：数据行地址非法或列数不足返回 *localdb.MalformedDatasetError（携带源行号）；底层读错误原样包装返回，由调用方归类。
func ParseCSV(in io.Reader) ([]localdb.Record, error) {
	r := csv.NewReader(in)
	r.Comment = '#'
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	r.ReuseRecord = true

	var rows []localdb.Record
	first := true
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) && !errors.Is(pe.Err, io.ErrUnexpectedEOF) {
				return nil, &localdb.MalformedDatasetError{Where: "line", Line: pe.Line, Reason: pe.Err.Error()}
			}
			return nil, fmt.Errorf("read dataset: %w", err)
		}
		line, _ := r.FieldPos(0)
		isFirst := first
		first = false
		if len(rec) < 3 {
			if isFirst {
				continue
			}
			return nil, &localdb.MalformedDatasetError{Where: "line", Line: line, Reason: fmt.Sprintf("expected at least 3 fields, got %d", len(rec))}
		}
		start, err := localdb.ParseIPv4(strings.TrimSpace(rec[0]))
		if err != nil {
			if isFirst {
				continue
			}
			return nil, &localdb.MalformedDatasetError{Where: "line", Line: line, Reason: err.Error()}
		}
		end, err := localdb.ParseIPv4(strings.TrimSpace(rec[1]))
		if err != nil {
			return nil, &localdb.MalformedDatasetError{Where: "line", Line: line, Reason: err.Error()}
		}
		row := localdb.Record{Start: start, End: end, Owner: strings.TrimSpace(rec[2])}
		if len(rec) > 3 {
			row.URL = strings.TrimSpace(rec[3])
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// 文档注释：导出为规范化 CSV（不含表头），与 ParseCSV 互逆
func WriteCSV(w io.Writer, rows []localdb.Record) error {
	cw := csv.NewWriter(w)
	for _, r := range rows {
		if err := cw.Write([]string{localdb.FormatIPv4(r.Start), localdb.FormatIPv4(r.End), r.Owner, r.URL}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
