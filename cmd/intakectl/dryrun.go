package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/doc-intake/constants"
	"github.com/joseph-ayodele/doc-intake/internal/app"
	"github.com/joseph-ayodele/doc-intake/internal/classify"
	"github.com/joseph-ayodele/doc-intake/internal/common"
	"github.com/joseph-ayodele/doc-intake/internal/ocr"
)

var ocrCmd = &cobra.Command{
	Use:   "ocr <file>",
	Short: "Run the OCR fan-out on a local file and print every attempt",
	Args:  cobra.ExactArgs(1),
	RunE:  runOCR,
}

var classifyCmd = &cobra.Command{
	Use:   "classify <file>",
	Short: "Run OCR and classification on a local file",
	Args:  cobra.ExactArgs(1),
	RunE:  runClassify,
}

var (
	ocrShowText bool
	rulesFile   string
)

func init() {
	ocrCmd.Flags().BoolVar(&ocrShowText, "text", false, "Print the accepted text")
	classifyCmd.Flags().StringVar(&rulesFile, "rules", "", "Rule set file (defaults to RULES_FILE or the built-in set)")

	rootCmd.AddCommand(ocrCmd, classifyCmd)
}

type ocrReport struct {
	File     string        `json:"file"`
	Format   string        `json:"format"`
	Engine   string        `json:"engine,omitempty"`
	Pages    int           `json:"pages"`
	Chars    int           `json:"chars"`
	Warnings []string      `json:"warnings,omitempty"`
	Attempts []ocr.Attempt `json:"attempts"`
	Error    string        `json:"error,omitempty"`
	Text     string        `json:"text,omitempty"`
}

func extractLocal(cmd *cobra.Command, path string) (ocr.Result, ocrReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ocr.Result{}, ocrReport{}, err
	}
	if errs := common.ValidateStruct(cfg.OCR); len(errs) > 0 {
		return ocr.Result{}, ocrReport{}, common.NewAppError("CONFIG_ERROR", common.JoinValidationErrors(errs), common.ErrInvalidInput)
	}
	selector, err := app.NewSelector(cmd.Context(), cfg.OCR, logger)
	if err != nil {
		return ocr.Result{}, ocrReport{}, err
	}

	doc := ocr.NewDocument(filepath.Base(path), constants.MIMEForExt(filepath.Ext(path)), data)
	res, err := selector.ExtractText(cmd.Context(), doc)
	rep := ocrReport{
		File:     path,
		Format:   doc.Format,
		Engine:   res.EngineUsed,
		Pages:    res.PageCount,
		Chars:    len([]rune(res.Text)),
		Warnings: res.Warnings,
		Attempts: res.Attempts,
	}
	if err != nil {
		rep.Error = err.Error()
		var ex *ocr.ExhaustedError
		if errors.As(err, &ex) {
			rep.Attempts = ex.Attempts
		}
	}
	return res, rep, err
}

func runOCR(cmd *cobra.Command, args []string) error {
	res, rep, err := extractLocal(cmd, args[0])
	if rep.File == "" {
		return err
	}
	if ocrShowText {
		rep.Text = res.Text
	}
	if perr := printJSON(cmd.OutOrStdout(), rep); perr != nil {
		return perr
	}
	return err
}

func runClassify(cmd *cobra.Command, args []string) error {
	path := rulesFile
	if path == "" {
		path = cfg.Rules.File
	}
	rs, err := app.LoadRules(path, logger)
	if err != nil {
		return err
	}
	res, rep, err := extractLocal(cmd, args[0])
	if err != nil {
		if rep.File != "" {
			_ = printJSON(cmd.OutOrStdout(), rep)
		}
		return err
	}
	out := classify.Classify(rs, classify.PagesFromText(res.Text))
	fmt.Fprintf(cmd.ErrOrStderr(), "ocr engine=%s pages=%d chars=%d\n", rep.Engine, rep.Pages, rep.Chars)
	return printJSON(cmd.OutOrStdout(), out)
}
