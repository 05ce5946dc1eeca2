package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/opensource-finance/claimengine/internal/domain"
	"github.com/opensource-finance/claimengine/internal/reference"
	"github.com/opensource-finance/claimengine/internal/repository"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			repo, err := repository.New(cfg.Repository)
			if err != nil {
				return err
			}
			defer repo.Close()

			if err := repo.Migrate(cmd.Context()); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			slog.Info("migrations applied", "driver", repo.Driver())
			return nil
		},
	}
}

func seedCmd() *cobra.Command {
	var seedPath, parquetPath string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Import reference tables from a YAML seed and a tariff Parquet file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if seedPath == "" && parquetPath == "" {
				return errors.New("at least one of --file or --tariffs is required")
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			repo, err := repository.New(cfg.Repository)
			if err != nil {
				return err
			}
			defer repo.Close()

			result, err := reference.Import(cmd.Context(), repo, seedPath, parquetPath)
			if err != nil {
				return err
			}
			logImport(result)
			return nil
		},
	}
	cmd.Flags().StringVarP(&seedPath, "file", "f", "", "YAML seed file")
	cmd.Flags().StringVar(&parquetPath, "tariffs", "", "tariff Parquet file")
	return cmd
}

func exportTariffsCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export-tariffs",
		Short: "Write every stored tariff to a Parquet file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			repo, err := repository.New(cfg.Repository)
			if err != nil {
				return err
			}
			defer repo.Close()

			tariffs, err := repo.ListTariffs(cmd.Context())
			if err != nil {
				return err
			}
			if err := reference.WriteTariffParquet(out, tariffs); err != nil {
				return err
			}
			slog.Info("tariffs exported", "path", out, "rows", len(tariffs))
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "tariffs.parquet", "output Parquet file")
	return cmd
}

// resolveOutput is printed by the resolve command.
type resolveOutput struct {
	Code        *domain.CodeResolution    `json:"code"`
	Tariff      *domain.TariffQuote       `json:"tariff,omitempty"`
	TariffError string                    `json:"tariffError,omitempty"`
	Consistency *domain.ConsistencyResult `json:"consistency"`
}

func resolveCmd() *cobra.Command {
	var (
		serviceType  string
		diagnosis    string
		secondary    []string
		procedures   []string
		drugs        []string
		region       int
		class        string
		hospitalType string
		payerClass   int
	)
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve one claim against the stored reference data and print JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			st, err := domain.ParseServiceType(serviceType)
			if err != nil {
				return err
			}
			ht, err := domain.ParseHospitalType(hospitalType)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			out, err := resolveOne(ctx, a, domain.CodeRequest{
				ServiceType:        st,
				PrimaryDiagnosis:   diagnosis,
				SecondaryDiagnoses: secondary,
				Procedures:         procedures,
			}, domain.Facility{
				Region:        region,
				HospitalClass: class,
				HospitalType:  ht,
				PayerClass:    domain.PayerClass(payerClass),
			}, drugs)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&serviceType, "service-type", "s", "inpatient", "inpatient or outpatient")
	f.StringVarP(&diagnosis, "dx", "d", "", "primary diagnosis code")
	f.StringSliceVar(&secondary, "secondary", nil, "secondary diagnosis codes")
	f.StringSliceVarP(&procedures, "procedures", "p", nil, "procedure codes in claim order")
	f.StringSliceVar(&drugs, "drugs", nil, "drug names")
	f.IntVar(&region, "region", 1, "tariff region")
	f.StringVar(&class, "class", "C", "hospital class")
	f.StringVar(&hospitalType, "hospital-type", "government", "government or private")
	f.IntVar(&payerClass, "payer-class", 3, "payer class 1..3")
	_ = cmd.MarkFlagRequired("dx")
	return cmd
}

func resolveOne(ctx context.Context, a *app, req domain.CodeRequest, facility domain.Facility, drugs []string) (*resolveOutput, error) {
	code, err := a.codes.Resolve(ctx, req)
	if err != nil {
		return nil, err
	}
	out := &resolveOutput{
		Code:        code,
		Consistency: a.scorer.Score(req.PrimaryDiagnosis, req.Procedures, drugs),
	}

	quote, err := a.tariffs.Resolve(ctx, code.BillingCode, facility)
	switch {
	case err == nil:
		out.Tariff = quote
	case errors.Is(err, domain.ErrTariffNotFound):
		out.TariffError = domain.ErrTariffNotFound.Error()
	default:
		return nil, err
	}
	return out, nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("claimengine %s (commit %s, built %s)\n", Version, Commit, BuildDate)
		},
	}
}
