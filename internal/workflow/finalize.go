package workflow

import (
	"log/slog"

	"docpipe/internal/export"
	"docpipe/internal/logging"
	"docpipe/internal/stages"
	"docpipe/internal/state"
)

// writeFinal persists the terminal artifacts of a successful run. Failures
// are logged and do not change the run outcome.
func (d *Driver) writeFinal(logger *slog.Logger, st *state.State) []string {
	if !d.store.Enabled() {
		return nil
	}
	var artifacts []string
	keep := func(name, path string, err error) {
		if err != nil {
			logging.WarnWithContext(logger, "final artifact write failed", "artifact_failed",
				logging.String("artifact", name),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "the checkpoint for the last stage still holds the data"),
			)
			return
		}
		if path != "" {
			artifacts = append(artifacts, path)
		}
	}

	path, err := d.store.SaveFinal(st, state.FinalState)
	keep(state.FinalState, path, err)
	if st.SchemaMapping != nil {
		path, err = d.store.SaveFinal(st.SchemaMapping, state.FinalRecords)
		keep(state.FinalRecords, path, err)
	}
	if st.Review != nil {
		path, err = d.store.SaveFinal(st.Review, state.FinalReview)
		keep(state.FinalReview, path, err)
		path, err = d.store.SaveReport(stages.RenderReviewReport(st.Review), state.FinalReviewReport)
		keep(state.FinalReviewReport, path, err)
	}
	if d.settings.SpreadsheetExport && st.SchemaMapping != nil {
		path = d.store.FinalPath(state.FinalSpreadsheet)
		err = export.WriteWorkbook(path, st.SchemaMapping, st.Review, d.stages.Domain())
		keep(state.FinalSpreadsheet, path, err)
	}
	logger.Debug("final artifacts written", logging.Int("count", len(artifacts)))
	return artifacts
}
