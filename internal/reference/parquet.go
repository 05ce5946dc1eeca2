package reference

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/parquet-go/parquet-go"
	"github.com/shopspring/decimal"

	"github.com/opensource-finance/claimengine/internal/codes"
	"github.com/opensource-finance/claimengine/internal/domain"
)

// TariffRow is the Parquet layout of a tariff. Prices are decimal
// strings; an empty string means the payer class has no price.
type TariffRow struct {
	BillingCode   string `parquet:"billing_code"`
	Description   string `parquet:"description"`
	Region        int32  `parquet:"region"`
	HospitalClass string `parquet:"hospital_class"`
	HospitalType  string `parquet:"hospital_type"`
	PriceClass1   string `parquet:"price_class1"`
	PriceClass2   string `parquet:"price_class2"`
	PriceClass3   string `parquet:"price_class3"`
}

const parquetReadBatch = 1024

// ReadTariffParquet loads every row of a tariff Parquet file.
func ReadTariffParquet(path string) ([]domain.TariffEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open parquet: %w", err)
	}
	defer f.Close()

	reader := parquet.NewGenericReader[TariffRow](f)
	defer reader.Close()

	out := make([]domain.TariffEntry, 0, reader.NumRows())
	buf := make([]TariffRow, parquetReadBatch)
	for {
		n, err := reader.Read(buf)
		for i := 0; i < n; i++ {
			entry, convErr := buf[i].entry()
			if convErr != nil {
				return nil, fmt.Errorf("row %d: %w", len(out), convErr)
			}
			out = append(out, entry)
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read parquet: %w", err)
		}
	}
	return out, nil
}

// WriteTariffParquet writes tariffs to path, replacing any existing file.
func WriteTariffParquet(path string, tariffs []domain.TariffEntry) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create parquet file: %w", err)
	}

	writer := parquet.NewGenericWriter[TariffRow](f,
		parquet.Compression(&parquet.Snappy),
	)

	rows := make([]TariffRow, 0, len(tariffs))
	for i := range tariffs {
		rows = append(rows, newTariffRow(&tariffs[i]))
	}
	if _, err := writer.Write(rows); err != nil {
		writer.Close()
		f.Close()
		return fmt.Errorf("failed to write parquet rows: %w", err)
	}

	if err := writer.Close(); err != nil {
		f.Close()
		return fmt.Errorf("failed to close parquet writer: %w", err)
	}
	return f.Close()
}

func newTariffRow(t *domain.TariffEntry) TariffRow {
	row := TariffRow{
		BillingCode:   t.BillingCode,
		Description:   t.Description,
		Region:        int32(t.Region),
		HospitalClass: t.HospitalClass,
		HospitalType:  string(t.HospitalType),
	}
	if p, ok := t.Prices[domain.PayerClass1]; ok {
		row.PriceClass1 = p.String()
	}
	if p, ok := t.Prices[domain.PayerClass2]; ok {
		row.PriceClass2 = p.String()
	}
	if p, ok := t.Prices[domain.PayerClass3]; ok {
		row.PriceClass3 = p.String()
	}
	return row
}

func (r TariffRow) entry() (domain.TariffEntry, error) {
	ht, err := domain.ParseHospitalType(r.HospitalType)
	if err != nil {
		return domain.TariffEntry{}, err
	}

	entry := domain.TariffEntry{
		BillingCode:   codes.BillingCode(r.BillingCode),
		Description:   r.Description,
		Region:        int(r.Region),
		HospitalClass: codes.HospitalClass(r.HospitalClass),
		HospitalType:  ht,
		Prices:        make(map[domain.PayerClass]decimal.Decimal, 3),
	}
	for class, raw := range map[domain.PayerClass]string{
		domain.PayerClass1: r.PriceClass1,
		domain.PayerClass2: r.PriceClass2,
		domain.PayerClass3: r.PriceClass3,
	} {
		if raw == "" {
			continue
		}
		p, err := decimal.NewFromString(raw)
		if err != nil {
			return domain.TariffEntry{}, fmt.Errorf("price class %d: %w", class, err)
		}
		entry.Prices[class] = p
	}
	return entry, nil
}
