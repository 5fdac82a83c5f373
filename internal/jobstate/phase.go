// Package jobstate models a job's position in the pipeline as a closed set of
// phase values, each carrying exactly the artifacts valid in that phase.
package jobstate

import (
	"encoding/json"
	"fmt"

	"github.com/joseph-ayodele/doc-intake/constants"
	"github.com/joseph-ayodele/doc-intake/internal/entity"
)

// Phase is implemented only by the types in this package.
type Phase interface {
	Status() constants.JobStatus
	phase()
}

// OCROutput is what the OCR stage persists.
type OCROutput struct {
	Text      string
	PageCount int
	Engine    string
}

// Classification is what the classify stage persists.
type Classification struct {
	DocType        string
	Confidence     float64
	RuleSetVersion string
}

// AIOutput is what the summarise stage persists.
type AIOutput struct {
	Summary          json.RawMessage
	Model            string
	PromptTokens     int
	CompletionTokens int
	LatencyMS        int64
}

type Queued struct{}

// InOCR may carry text already written to the row (for example by an operator
// re-queueing a job); the OCR stage reuses it instead of re-running engines.
type InOCR struct {
	Carried *OCROutput
}

type InExtract struct {
	OCR     OCROutput
	Carried *Classification
}

type InSummarise struct {
	OCR   OCROutput
	Class Classification
}

type Ready struct {
	OCR   OCROutput
	Class Classification
	AI    AIOutput
}

type Failed struct {
	Code    constants.ErrorCode
	Message string
}

func (Queued) Status() constants.JobStatus      { return constants.JobStatusQueued }
func (InOCR) Status() constants.JobStatus       { return constants.JobStatusOCR }
func (InExtract) Status() constants.JobStatus   { return constants.JobStatusExtract }
func (InSummarise) Status() constants.JobStatus { return constants.JobStatusSummarise }
func (Ready) Status() constants.JobStatus       { return constants.JobStatusReady }
func (Failed) Status() constants.JobStatus      { return constants.JobStatusFailed }

func (Queued) phase()      {}
func (InOCR) phase()       {}
func (InExtract) phase()   {}
func (InSummarise) phase() {}
func (Ready) phase()       {}
func (Failed) phase()      {}

// InvariantError reports a row whose columns do not fit its status.
type InvariantError struct {
	Status constants.JobStatus
	Reason string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("job in %s violates invariant: %s", e.Status, e.Reason)
}

// FromJob builds the phase for a stored row. Rows that break the phase's
// invariants (e.g. EXTRACT without text, READY without summary) are rejected.
func FromJob(j *entity.Job) (Phase, error) {
	bad := func(reason string) error { return &InvariantError{Status: j.Status, Reason: reason} }

	switch j.Status {
	case constants.JobStatusQueued:
		return Queued{}, nil

	case constants.JobStatusOCR:
		p := InOCR{}
		if ocr, ok := ocrOf(j); ok {
			p.Carried = &ocr
		}
		return p, nil

	case constants.JobStatusExtract:
		ocr, ok := ocrOf(j)
		if !ok {
			return nil, bad("extracted_text missing")
		}
		p := InExtract{OCR: ocr}
		if c, ok := classOf(j); ok {
			p.Carried = &c
		}
		return p, nil

	case constants.JobStatusSummarise:
		ocr, ok := ocrOf(j)
		if !ok {
			return nil, bad("extracted_text missing")
		}
		c, ok := classOf(j)
		if !ok {
			return nil, bad("doc_type_guess missing")
		}
		if len(j.Summary) > 0 {
			return nil, bad("summary set before READY")
		}
		return InSummarise{OCR: ocr, Class: c}, nil

	case constants.JobStatusReady:
		ocr, ok := ocrOf(j)
		if !ok {
			return nil, bad("extracted_text missing")
		}
		c, ok := classOf(j)
		if !ok {
			return nil, bad("doc_type_guess missing")
		}
		ai, ok := aiOf(j)
		if !ok {
			return nil, bad("summary missing")
		}
		return Ready{OCR: ocr, Class: c, AI: ai}, nil

	case constants.JobStatusFailed:
		p := Failed{Code: constants.ErrorCodeUnknown}
		if j.ErrorCode != nil {
			p.Code = *j.ErrorCode
		}
		if j.ErrorMessage != nil {
			p.Message = *j.ErrorMessage
		}
		return p, nil
	}
	return nil, bad("unknown status")
}

// PatchFor returns the columns to write when entering next.
func PatchFor(next Phase) entity.JobPatch {
	var p entity.JobPatch
	switch ph := next.(type) {
	case InExtract:
		setOCR(&p, ph.OCR)
	case InSummarise:
		setClass(&p, ph.Class)
	case Ready:
		setAI(&p, ph.AI)
	case Failed:
		code := ph.Code
		msg := ph.Message
		p.ErrorCode = &code
		p.ErrorMessage = &msg
	}
	return p
}

func setOCR(p *entity.JobPatch, o OCROutput) {
	text, pages, engine := o.Text, o.PageCount, o.Engine
	p.ExtractedText = &text
	p.PageCount = &pages
	p.OCREngine = &engine
}

func setClass(p *entity.JobPatch, c Classification) {
	dt, conf, ver := c.DocType, c.Confidence, c.RuleSetVersion
	p.DocTypeGuess = &dt
	p.DocTypeConfidence = &conf
	p.RuleSetVersion = &ver
}

func setAI(p *entity.JobPatch, a AIOutput) {
	model, pt, ct, lat := a.Model, a.PromptTokens, a.CompletionTokens, a.LatencyMS
	p.Summary = a.Summary
	p.AIModel = &model
	p.AIPromptTokens = &pt
	p.AICompletionTokens = &ct
	p.AILatencyMS = &lat
}

func ocrOf(j *entity.Job) (OCROutput, bool) {
	if j.ExtractedText == nil {
		return OCROutput{}, false
	}
	o := OCROutput{Text: *j.ExtractedText}
	if j.PageCount != nil {
		o.PageCount = *j.PageCount
	}
	if j.OCREngine != nil {
		o.Engine = *j.OCREngine
	}
	return o, true
}

func classOf(j *entity.Job) (Classification, bool) {
	if j.DocTypeGuess == nil {
		return Classification{}, false
	}
	c := Classification{DocType: *j.DocTypeGuess}
	if j.DocTypeConfidence != nil {
		c.Confidence = *j.DocTypeConfidence
	}
	if j.RuleSetVersion != nil {
		c.RuleSetVersion = *j.RuleSetVersion
	}
	return c, true
}

func aiOf(j *entity.Job) (AIOutput, bool) {
	if len(j.Summary) == 0 {
		return AIOutput{}, false
	}
	a := AIOutput{Summary: j.Summary}
	if j.AIModel != nil {
		a.Model = *j.AIModel
	}
	if j.AIPromptTokens != nil {
		a.PromptTokens = *j.AIPromptTokens
	}
	if j.AICompletionTokens != nil {
		a.CompletionTokens = *j.AICompletionTokens
	}
	if j.AILatencyMS != nil {
		a.LatencyMS = *j.AILatencyMS
	}
	return a, true
}
