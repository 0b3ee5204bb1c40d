package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/speechmatics/speechmatics-go"
	"github.com/speechmatics/speechmatics-go/batch"
)

var (
	flagJobID        string
	flagOutputFormat string
	flagFetchURL     string
	flagPollInterval time.Duration
	flagJobTimeout   time.Duration
	flagForceDelete  bool
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Batch commands",
}

func init() {
	transcribe := &cobra.Command{
		Use:   "transcribe FILEPATH...",
		Short: "Submit a batch job, wait for it to finish and print the transcript",
		Args:  batchArgsValidator,
		RunE:  runBatchTranscribe,
	}
	addTranscriptionFlags(transcribe)
	addBatchSubmitFlags(transcribe)
	transcribe.Flags().StringVar(&flagOutputFormat, "output-format", "txt", "Transcript format: txt, srt or json-v2")
	transcribe.Flags().DurationVar(&flagPollInterval, "poll-interval", batch.DefaultPollInterval, "How often to check whether the job has finished")
	transcribe.Flags().DurationVar(&flagJobTimeout, "timeout", time.Hour, "How long to wait for the job to finish")

	submit := &cobra.Command{
		Use:   "submit FILEPATH...",
		Short: "Submit a batch job and print its ID without waiting",
		Args:  batchArgsValidator,
		RunE:  runBatchSubmit,
	}
	addTranscriptionFlags(submit)
	addBatchSubmitFlags(submit)

	status := &cobra.Command{
		Use:   "job-status",
		Short: "Print the current status of a job",
		RunE:  runBatchJobStatus,
	}
	status.Flags().StringVar(&flagJobID, "job-id", "", "ID of the job")
	status.MarkFlagRequired("job-id")

	results := &cobra.Command{
		Use:   "get-results",
		Short: "Fetch and print the transcript of a finished job",
		RunE:  runBatchGetResults,
	}
	results.Flags().StringVar(&flagJobID, "job-id", "", "ID of the job")
	results.Flags().StringVar(&flagOutputFormat, "output-format", "txt", "Transcript format: txt, srt or json-v2")
	results.MarkFlagRequired("job-id")

	deleteJob := &cobra.Command{
		Use:   "delete-job",
		Short: "Delete a job and its transcript",
		RunE:  runBatchDeleteJob,
	}
	deleteJob.Flags().StringVar(&flagJobID, "job-id", "", "ID of the job")
	deleteJob.Flags().BoolVar(&flagForceDelete, "force", false, "Delete the job even if it is still running")
	deleteJob.MarkFlagRequired("job-id")

	listJobs := &cobra.Command{
		Use:   "list-jobs",
		Short: "List the jobs submitted with this API key",
		RunE:  runBatchListJobs,
	}

	batchCmd.AddCommand(transcribe, submit, status, results, deleteJob, listJobs)
	RootCmd.AddCommand(batchCmd)
}

func addBatchSubmitFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&flagFetchURL, "fetch-url", "", "Have the service fetch the audio from this URL instead of uploading a file")
}

// batchArgsValidator allows zero paths only when --fetch-url is set.
func batchArgsValidator(cmd *cobra.Command, args []string) error {
	if len(args) == 0 && flagFetchURL == "" {
		return fmt.Errorf("requires an audio file argument or --fetch-url")
	}
	return nil
}

func batchClient() (*batch.Client, error) {
	settings, err := connectionSettings(modeBatch)
	if err != nil {
		return nil, err
	}
	client := batch.NewClient(settings)
	client.FromCLI = true
	return client, nil
}

// batchJobConfig assembles a job config from the shared transcription flags
// plus the batch-only ones.
func batchJobConfig() (speechmatics.BatchTranscriptionConfig, error) {
	transcription, err := transcriptionConfigFromFlags()
	if err != nil {
		return speechmatics.BatchTranscriptionConfig{}, err
	}
	config := speechmatics.BatchTranscriptionConfig{TranscriptionConfig: transcription}
	if flagFetchURL != "" {
		config.FetchData = &speechmatics.FetchData{URL: flagFetchURL}
	}
	return config, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

func runBatchTranscribe(cmd *cobra.Command, args []string) error {
	client, err := batchClient()
	if err != nil {
		return err
	}
	config, err := batchJobConfig()
	if err != nil {
		return err
	}
	format, err := speechmatics.NormalizeFormat(flagOutputFormat)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	sources := batchAudioSources(args)
	for _, source := range sources {
		transcript, err := client.Transcribe(ctx, source, config, format, flagPollInterval, flagJobTimeout)
		if err != nil {
			return err
		}
		fmt.Println(transcript)
	}
	return nil
}

func runBatchSubmit(cmd *cobra.Command, args []string) error {
	client, err := batchClient()
	if err != nil {
		return err
	}
	config, err := batchJobConfig()
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	for _, source := range batchAudioSources(args) {
		id, err := client.SubmitJob(ctx, source, config)
		if err != nil {
			return err
		}
		fmt.Println(id)
	}
	return nil
}

// batchAudioSources maps the positional file arguments to audio sources,
// or a single fetch-only source when --fetch-url is given without files.
func batchAudioSources(args []string) []batch.AudioSource {
	if len(args) == 0 {
		return []batch.AudioSource{batch.FetchOnly()}
	}
	sources := make([]batch.AudioSource, 0, len(args))
	for _, path := range args {
		sources = append(sources, batch.FromFile(path))
	}
	return sources
}

func runBatchJobStatus(cmd *cobra.Command, args []string) error {
	client, err := batchClient()
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	details, err := client.CheckJobStatus(ctx, flagJobID)
	if err != nil {
		return err
	}
	printJobTable([]speechmatics.JobDetails{*details})
	return nil
}

func runBatchGetResults(cmd *cobra.Command, args []string) error {
	client, err := batchClient()
	if err != nil {
		return err
	}
	format, err := speechmatics.NormalizeFormat(flagOutputFormat)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	transcript, err := client.GetJobResult(ctx, flagJobID, format)
	if err != nil {
		return err
	}
	fmt.Println(transcript)
	return nil
}

func runBatchDeleteJob(cmd *cobra.Command, args []string) error {
	client, err := batchClient()
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	if err := client.DeleteJob(ctx, flagJobID, flagForceDelete); err != nil {
		return err
	}
	fmt.Printf("deleted job %s\n", flagJobID)
	return nil
}

func runBatchListJobs(cmd *cobra.Command, args []string) error {
	client, err := batchClient()
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	jobs, err := client.ListJobs(ctx)
	if err != nil {
		return err
	}
	printJobTable(jobs)
	return nil
}

func printJobTable(jobs []speechmatics.JobDetails) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"ID", "Status", "Created", "File", "Duration"})
	table.SetBorder(false)
	for _, job := range jobs {
		duration := ""
		if job.Duration > 0 {
			duration = (time.Duration(job.Duration) * time.Second).String()
		}
		table.Append([]string{
			job.ID,
			string(job.Status),
			job.CreatedAt.Format(time.RFC3339),
			job.DataName,
			duration,
		})
	}
	table.Render()
}
