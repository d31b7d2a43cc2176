package cli

import (
	"errors"
	"flag"
	"io"
	"strings"

	"github.com/eshaffer321/splitmatch/internal/application/service"
	"github.com/eshaffer321/splitmatch/internal/domain/splitmatch"
)

// FindFlags are the flags of the find-splits command
type FindFlags struct {
	ConfigPath     string
	TenantID       string
	SourceID       string
	ToleranceCents int64 // -1 = configured default
	MatchType      string
	TopK           int
	Create         bool
	Confirm        bool
	Verbose        bool
}

// ParseFindFlags parses find-splits flags from args
func ParseFindFlags(args []string, output io.Writer) (FindFlags, error) {
	var flags FindFlags
	fs := flag.NewFlagSet("find-splits", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&flags.ConfigPath, "config", "config.yaml", "Configuration file path")
	fs.StringVar(&flags.TenantID, "tenant", "", "Tenant id (required)")
	fs.StringVar(&flags.SourceID, "source", "", "Source record id (required)")
	fs.Int64Var(&flags.ToleranceCents, "tolerance", -1, "Tolerance in cents (-1 = configured default)")
	fs.StringVar(&flags.MatchType, "type", "", "ONE_TO_MANY or MANY_TO_ONE (empty = infer from the source)")
	fs.IntVar(&flags.TopK, "top", 0, "Number of suggestions to print (0 = configured default)")
	fs.BoolVar(&flags.Create, "create", false, "Persist the best suggestion as a PENDING split match")
	fs.BoolVar(&flags.Confirm, "confirm", false, "Confirm the created split match (implies -create)")
	fs.BoolVar(&flags.Verbose, "verbose", false, "Verbose output")

	if err := fs.Parse(args); err != nil {
		return flags, err
	}
	if flags.Confirm {
		flags.Create = true
	}

	var errs []error
	if strings.TrimSpace(flags.TenantID) == "" {
		errs = append(errs, errors.New("-tenant is required"))
	}
	if strings.TrimSpace(flags.SourceID) == "" {
		errs = append(errs, errors.New("-source is required"))
	}
	if flags.ToleranceCents < -1 {
		errs = append(errs, errors.New("-tolerance must not be negative"))
	}
	if mt := splitmatch.MatchType(flags.MatchType); mt != "" && !mt.Valid() {
		errs = append(errs, errors.New("-type must be ONE_TO_MANY or MANY_TO_ONE"))
	}
	if flags.TopK < 0 {
		errs = append(errs, errors.New("-top must not be negative"))
	}
	return flags, errors.Join(errs...)
}

// ToSuggestionRequest converts FindFlags to a service request
func (f FindFlags) ToSuggestionRequest() service.SuggestionRequest {
	req := service.SuggestionRequest{
		TenantID:            f.TenantID,
		SourceTransactionID: f.SourceID,
		MatchType:           splitmatch.MatchType(f.MatchType),
	}
	if f.ToleranceCents >= 0 {
		tol := f.ToleranceCents
		req.ToleranceCents = &tol
	}
	return req
}
