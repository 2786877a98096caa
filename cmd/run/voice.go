package run

import (
	"github.com/spf13/cobra"

	"github.com/klytics/sheetsense/internal/app"
	"github.com/klytics/sheetsense/internal/progress"
	"github.com/klytics/sheetsense/internal/speech"
)

// NewVoiceCommand returns the voice command.
func NewVoiceCommand() *cobra.Command {
	var t target

	cmd := &cobra.Command{
		Use:   "voice <clip>",
		Short: "Transcribe a recorded command and apply it to a workbook",
		Long: `Transcribes an audio clip (wav, webm, ogg, mp3, m4a, flac) with the
configured speech endpoint, then runs the recognized command.

  sheetsense voice request.webm -w sales.xlsx`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			clip, err := speech.ReadClip(args[0])
			if err != nil {
				return err
			}
			a, err := app.Load(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			asst, err := t.assistant(a, true)
			if err != nil {
				return err
			}

			spin := progress.NewSpinner("Listening...")
			spin.Start()
			reply := asst.HandleVoice(cmd.Context(), t.request(a, ""), clip)
			spin.Stop("")
			return a.Render("voice", reply)
		},
	}

	t.register(cmd)
	return cmd
}
