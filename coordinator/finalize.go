package coordinator

import (
	"github.com/jizhuozhi/go-future"
	"github.com/maxpert/provision/bulkwriter"
	"github.com/maxpert/provision/telemetry"
	"github.com/rs/zerolog/log"
)

// finalizeAll finalizes every writer and reports outcomes in declared table
// order regardless of how many tables were finalized concurrently. A failing
// table never prevents the others from being finalized.
func (c *Coordinator) finalizeAll() ([]bulkwriter.Result, []TableFailure) {
	futures := make([]*future.Future[bulkwriter.Result], len(c.writers))

	if c.opts.FinalizeParallelism <= 1 {
		for i, w := range c.writers {
			p := future.NewPromise[bulkwriter.Result]()
			p.Set(w.Finalize())
			futures[i] = p.Future()
		}
	} else {
		sem := make(chan struct{}, c.opts.FinalizeParallelism)
		for i, w := range c.writers {
			p := future.NewPromise[bulkwriter.Result]()
			futures[i] = p.Future()

			sem <- struct{}{}
			go func(w *bulkwriter.Writer, p *future.Promise[bulkwriter.Result]) {
				defer func() { <-sem }()
				p.Set(w.Finalize())
			}(w, p)
		}
	}

	var results []bulkwriter.Result
	var failures []TableFailure
	for i, fut := range futures {
		table := c.writers[i].Table()
		res, err := fut.Get()
		if err != nil {
			telemetry.TablesFinalizedTotal.With(table, "failed").Inc()
			log.Error().
				Err(err).
				Str("profile", c.profile.Name).
				Str("table", table).
				Msg("Failed to finalize table")
			failures = append(failures, TableFailure{Profile: c.profile.Name, Table: table, Err: err})
			continue
		}

		telemetry.TablesFinalizedTotal.With(table, "success").Inc()
		log.Info().
			Str("profile", c.profile.Name).
			Str("table", table).
			Int64("rows", res.Rows).
			Int64("cells", res.File.Cells).
			Str("path", res.File.Path).
			Dur("duration", res.Duration).
			Msg("Table finalized")
		results = append(results, res)
	}
	return results, failures
}
