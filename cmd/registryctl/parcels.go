package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/dlrs-ng/land-registry/pkg/api"
	"github.com/dlrs-ng/land-registry/pkg/parcel"
)

func newParcelsCmd(s settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "parcels",
		Aliases: []string{"parcel"},
		Short:   "Manage parcel records",
	}
	cmd.AddCommand(
		newParcelsListCmd(s),
		newParcelsGetCmd(s),
		newParcelsSubmitCmd(s),
		newParcelsEditCmd(s),
		newParcelsApproveCmd(s),
		newParcelsDeleteCmd(s),
		newParcelsIntegrityCmd(s),
		newParcelsHistoryCmd(s),
	)
	return cmd
}

func newParcelsListCmd(s settings) *cobra.Command {
	var status, license string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List parcels, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q := url.Values{}
			if status != "" {
				q.Set("status", status)
			}
			if license != "" {
				q.Set("surveyorLicense", license)
			}
			path := "/api/parcels"
			if len(q) > 0 {
				path += "?" + q.Encode()
			}

			var records []parcel.Record
			if err := newClient(s).getJSON(path, &records); err != nil {
				return err
			}
			if s.output() != "table" {
				return printOutput(cmd.OutOrStdout(), s.output(), records)
			}

			rows := make([][]string, 0, len(records))
			for _, r := range records {
				rows = append(rows, []string{
					r.ID.String(),
					r.LandID,
					truncate(r.OwnerName, 30),
					string(r.Status),
					deref(r.SurveyorLicense),
					formatTime(&r.CreatedAt),
				})
			}
			printTable(cmd.OutOrStdout(), []string{"ID", "Land ID", "Owner", "Status", "Surveyor License", "Created"}, rows)
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "Filter by status (PENDING or VERIFIED)")
	cmd.Flags().StringVar(&license, "surveyor-license", "", "Filter by surveyor license")
	return cmd
}

func newParcelsGetCmd(s settings) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show one parcel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parcel.ParseID(args[0])
			if err != nil {
				return err
			}
			var rec parcel.Record
			if err := newClient(s).getJSON(parcelPath(id, ""), &rec); err != nil {
				return err
			}
			return printRecord(cmd.OutOrStdout(), s.output(), rec)
		},
	}
}

func newParcelsSubmitCmd(s settings) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a new parcel from a JSON file",
		Long: `Submit a new parcel. The JSON body uses the server's submission fields,
for example:

  {"ownerName": "Ada Obi", "nin": "12345678901", "phone": "0803...",
   "landDescription": "Plot 4, Minna",
   "points": [{"easting": 231000, "northing": 1050000}, ...]}

Use --file - to read from standard input.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			body, err := readBody(cmd.InOrStdin(), file)
			if err != nil {
				return err
			}
			var rec parcel.Record
			if err := newClient(s).postJSON("/api/parcels", body, &rec); err != nil {
				return err
			}
			return printRecord(cmd.OutOrStdout(), s.output(), rec)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "JSON file with the submission (- for stdin)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newParcelsEditCmd(s settings) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Edit a pending parcel with the fields from a JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parcel.ParseID(args[0])
			if err != nil {
				return err
			}
			body, err := readBody(cmd.InOrStdin(), file)
			if err != nil {
				return err
			}
			var rec parcel.Record
			if err := newClient(s).putJSON(parcelPath(id, ""), body, &rec); err != nil {
				return err
			}
			return printRecord(cmd.OutOrStdout(), s.output(), rec)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "JSON file with the changed fields (- for stdin)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newParcelsApproveCmd(s settings) *cobra.Command {
	return &cobra.Command{
		Use:   "approve <id>",
		Short: "Approve a pending parcel, making it immutable",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parcel.ParseID(args[0])
			if err != nil {
				return err
			}
			var rec parcel.Record
			if err := newClient(s).postJSON(parcelPath(id, "/approve"), nil, &rec); err != nil {
				return err
			}
			return printRecord(cmd.OutOrStdout(), s.output(), rec)
		},
	}
}

func newParcelsDeleteCmd(s settings) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a pending parcel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parcel.ParseID(args[0])
			if err != nil {
				return err
			}
			var resp map[string]any
			if err := newClient(s).deleteJSON(parcelPath(id, ""), &resp); err != nil {
				return err
			}
			if s.output() != "table" {
				return printOutput(cmd.OutOrStdout(), s.output(), resp)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Parcel %s deleted\n", id)
			return nil
		},
	}
}

func newParcelsIntegrityCmd(s settings) *cobra.Command {
	return &cobra.Command{
		Use:   "integrity <id>",
		Short: "Recompute a parcel's signature and fingerprint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parcel.ParseID(args[0])
			if err != nil {
				return err
			}
			var report parcel.IntegrityReport
			if err := newClient(s).getJSON(parcelPath(id, "/integrity"), &report); err != nil {
				return err
			}
			if s.output() != "table" {
				return printOutput(cmd.OutOrStdout(), s.output(), report)
			}

			fingerprintValid := "-"
			if report.FingerprintValid != nil {
				fingerprintValid = strconv.FormatBool(*report.FingerprintValid)
			}
			printTable(cmd.OutOrStdout(), []string{"Check", "Value"}, [][]string{
				{"Land ID", report.LandID},
				{"Status", string(report.Status)},
				{"Signature valid", strconv.FormatBool(report.SignatureValid)},
				{"Fingerprint valid", fingerprintValid},
				{"Consistent", strconv.FormatBool(report.Consistent)},
			})
			return nil
		},
	}
}

func newParcelsHistoryCmd(s settings) *cobra.Command {
	var pageSize int
	var pageToken string
	cmd := &cobra.Command{
		Use:   "history <id>",
		Short: "Show a parcel's audit trail, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parcel.ParseID(args[0])
			if err != nil {
				return err
			}
			q := url.Values{}
			if pageSize > 0 {
				q.Set("pageSize", strconv.Itoa(pageSize))
			}
			if pageToken != "" {
				q.Set("pageToken", pageToken)
			}
			path := parcelPath(id, "/history")
			if len(q) > 0 {
				path += "?" + q.Encode()
			}

			var page api.HistoryResponse
			if err := newClient(s).getJSON(path, &page); err != nil {
				return err
			}
			if s.output() != "table" {
				return printOutput(cmd.OutOrStdout(), s.output(), page)
			}

			rows := make([][]string, 0, len(page.Events))
			for _, e := range page.Events {
				at := e.At
				rows = append(rows, []string{formatTime(&at), string(e.Type), e.Actor, truncate(fmt.Sprint(e.Fields), 40)})
			}
			printTable(cmd.OutOrStdout(), []string{"Time", "Event", "Actor", "Fields"}, rows)
			if page.NextPageToken != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "\nNext page: --page-token %s\n", page.NextPageToken)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&pageSize, "page-size", 0, "Events per page (server default 20, max 100)")
	cmd.Flags().StringVar(&pageToken, "page-token", "", "Token from a previous page")
	return cmd
}

func parcelPath(id parcel.ID, suffix string) string {
	return "/api/parcels/" + id.String() + suffix
}

// readBody loads a JSON object from path, or from stdin when path is "-".
func readBody(stdin io.Reader, path string) (json.RawMessage, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("%s does not contain valid JSON", path)
	}
	return json.RawMessage(data), nil
}

func printRecord(w io.Writer, format string, rec parcel.Record) error {
	if format != "table" {
		return printOutput(w, format, rec)
	}
	printTable(w, []string{"Field", "Value"}, [][]string{
		{"ID", rec.ID.String()},
		{"Land ID", rec.LandID},
		{"Owner", rec.OwnerName},
		{"Description", truncate(rec.LandDescription, 60)},
		{"Geometry", string(rec.Geometry.Kind)},
		{"Surveyor", deref(rec.SurveyorName)},
		{"Surveyor License", deref(rec.SurveyorLicense)},
		{"Status", string(rec.Status)},
		{"Signature", rec.Signature},
		{"Fingerprint", deref(rec.Fingerprint)},
		{"Created", formatTime(&rec.CreatedAt)},
		{"Verified", formatTime(rec.VerifiedAt)},
	})
	return nil
}
