package cmds

import (
	"fmt"

	"github.com/go-go-golems/ragchat/pkg/ingest"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func NewIngestCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <file>...",
		Short: "Upload PDF or TXT documents and trigger their ingestion",
		Long: `Ingest copies each document into the upload directory and sends a
rag/ingest_document event for it. Ingestion runs asynchronously on the
backend, use "ragchat db count" to watch the vector count grow.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings()
			if err != nil {
				return err
			}
			client, err := newIngestClient(s)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			failed := 0
			for _, path := range args {
				doc, err := ingest.StoreUpload(path, s.Ingest.UploadDir)
				if err == nil {
					var id string
					id, err = client.IngestDocument(cmd.Context(), doc)
					if err == nil {
						_, _ = fmt.Fprintf(out, "Ingestion triggered for: %s (event %s)\n", doc.SourceID, id)
						continue
					}
				}
				failed++
				log.Error().Err(err).Str("path", path).Msg("Could not ingest document")
				_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", path, err)
			}

			if failed > 0 {
				return errors.Errorf("%d of %d documents could not be ingested", failed, len(args))
			}
			return nil
		},
	}
}
