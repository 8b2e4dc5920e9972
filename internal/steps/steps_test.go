package steps

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"ytreport/internal/bus"
	"ytreport/internal/comments"
	"ytreport/internal/config"
	"ytreport/internal/errs"
	"ytreport/internal/external"
	"ytreport/internal/llm"
	"ytreport/internal/metrics"
	"ytreport/internal/model"
	"ytreport/internal/rag"
	"ytreport/internal/repository"
	"ytreport/internal/vectorstore"
)

// --- repository fakes ---

type fakeReports struct {
	reports map[int64]model.Report
	updates []repository.ReportFields
}

func newFakeReports(reports ...model.Report) *fakeReports {
	m := make(map[int64]model.Report, len(reports))
	for _, r := range reports {
		m[r.ID] = r
	}
	return &fakeReports{reports: m}
}

func (f *fakeReports) Create(ctx context.Context, videoID int64) (model.Report, error) {
	return model.Report{}, nil
}

func (f *fakeReports) Get(ctx context.Context, id int64) (model.Report, error) {
	r, ok := f.reports[id]
	if !ok {
		return model.Report{}, repository.ErrNotFound
	}
	return r, nil
}

func (f *fakeReports) Update(ctx context.Context, id int64, fields repository.ReportFields) error {
	f.updates = append(f.updates, fields)
	return nil
}

type fakeTasks struct {
	overview, analysis, idea model.TaskStatus
}

func (f *fakeTasks) Create(ctx context.Context, reportID int64) (model.Task, error) {
	return model.Task{}, nil
}
func (f *fakeTasks) Get(ctx context.Context, reportID int64) (model.Task, error) {
	return model.Task{}, nil
}
func (f *fakeTasks) SetOverviewStatus(ctx context.Context, reportID int64, status model.TaskStatus) error {
	f.overview = status
	return nil
}
func (f *fakeTasks) SetAnalysisStatus(ctx context.Context, reportID int64, status model.TaskStatus) error {
	f.analysis = status
	return nil
}
func (f *fakeTasks) SetIdeaStatus(ctx context.Context, reportID int64, status model.TaskStatus) error {
	f.idea = status
	return nil
}

type fakeVideos struct {
	videos map[int64]model.Video
}

func newFakeVideos(videos ...model.Video) *fakeVideos {
	m := make(map[int64]model.Video, len(videos))
	for _, v := range videos {
		m[v.ID] = v
	}
	return &fakeVideos{videos: m}
}

func (f *fakeVideos) Get(ctx context.Context, id int64) (model.Video, error) {
	v, ok := f.videos[id]
	if !ok {
		return model.Video{}, repository.ErrNotFound
	}
	return v, nil
}
func (f *fakeVideos) SiblingsByChannel(ctx context.Context, channelID, excludeVideoID int64, limit int) ([]model.Video, error) {
	return nil, nil
}
func (f *fakeVideos) SiblingsByCategory(ctx context.Context, category string, excludeVideoID int64, limit int) ([]model.Video, error) {
	return nil, nil
}
func (f *fakeVideos) PopularByCategory(ctx context.Context, category string, limit int) ([]model.Video, error) {
	return nil, nil
}

type fakeChannels struct {
	channel model.Channel
}

func (f *fakeChannels) Get(ctx context.Context, id int64) (model.Channel, error) {
	return f.channel, nil
}

type fakeComments struct {
	rows []model.Comment
}

func (f *fakeComments) BulkInsert(ctx context.Context, comments []model.Comment) error {
	f.rows = append(f.rows, comments...)
	return nil
}

type fakeTrends struct {
	rows []model.TrendKeyword
}

func (f *fakeTrends) BulkInsert(ctx context.Context, keywords []model.TrendKeyword) error {
	f.rows = append(f.rows, keywords...)
	return nil
}

type fakeIdeas struct {
	rows []model.Idea
}

func (f *fakeIdeas) BulkInsert(ctx context.Context, ideas []model.Idea) error {
	f.rows = append(f.rows, ideas...)
	return nil
}

// --- vector store fake ---

type fakeStore struct {
	savedContext []string
	savedChunks  []model.ContentChunk
}

func (f *fakeStore) SaveContext(ctx context.Context, sourceType model.SourceType, sourceID int64, text string, meta map[string]any) error {
	f.savedContext = append(f.savedContext, text)
	return nil
}
func (f *fakeStore) SaveChunk(ctx context.Context, chunk model.ContentChunk) error {
	f.savedChunks = append(f.savedChunks, chunk)
	return nil
}
func (f *fakeStore) SearchSimilarByEmbedding(ctx context.Context, sourceType model.SourceType, queryEmbedding []float32, filterSourceID *int64, limit int) ([]vectorstore.Result, error) {
	return nil, nil
}
func (f *fakeStore) SearchSimilarK(ctx context.Context, queryText string, sourceType model.SourceType, sourceID int64, metaFilters map[string]string, limit int) ([]vectorstore.Result, error) {
	return nil, nil
}
func (f *fakeStore) ExistsByChunkTypeAndID(ctx context.Context, chunkType model.ChunkType, sourceID int64) (bool, error) {
	return false, nil
}

// --- external fakes ---

type fakeTranscript struct {
	segments []model.TranscriptSegment
}

func (f *fakeTranscript) Fetch(ctx context.Context, youtubeVideoID string) ([]model.TranscriptSegment, error) {
	return f.segments, nil
}

type fakeYouTubeData struct {
	pages [][]model.Comment
	err   error
}

func (f *fakeYouTubeData) CommentThreadsPage(ctx context.Context, youtubeVideoID, pageToken string) ([]model.Comment, string, error) {
	if f.err != nil {
		return nil, "", f.err
	}
	if len(f.pages) == 0 {
		return nil, "", nil
	}
	page := f.pages[0]
	f.pages = f.pages[1:]
	next := ""
	if len(f.pages) > 0 {
		next = "more"
	}
	return page, next, nil
}

type fakeAnalytics struct {
	retention    []model.RetentionRow
	retentionErr error
	metrics      external.VideoMetrics
}

func (f *fakeAnalytics) Retention(ctx context.Context, youtubeVideoID string) ([]model.RetentionRow, error) {
	if f.retentionErr != nil {
		return nil, f.retentionErr
	}
	return f.retention, nil
}
func (f *fakeAnalytics) FetchVideoMetrics(ctx context.Context, youtubeVideoID string) (external.VideoMetrics, error) {
	return f.metrics, nil
}

type fakeTrend struct {
	entries []external.TrendEntry
}

func (f *fakeTrend) Trending(ctx context.Context, category string) ([]external.TrendEntry, error) {
	return f.entries, nil
}

// --- llm fake ---

type fakeProvider struct {
	reply string
}

func (p fakeProvider) Chat(ctx context.Context, msgs []llm.Message, model string, temperature float64) (llm.Message, error) {
	return llm.Message{Role: "assistant", Content: p.reply}, nil
}

func baseDeps() Deps {
	return Deps{
		Reports:  newFakeReports(),
		Tasks:    &fakeTasks{},
		Videos:   newFakeVideos(),
		Channels: &fakeChannels{},
		Comments: &fakeComments{},
		Trends:   &fakeTrends{},
		Ideas:    &fakeIdeas{},

		Store: &fakeStore{},

		ParseRetryBudget: 2,
	}
}

func TestPreamble_DropsOnMissingReport(t *testing.T) {
	deps := baseDeps()
	_, ok, err := deps.preamble(context.Background(), bus.StepMessage{ReportID: 99}, func(string, ...any) {})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestPreamble_DropsOnMissingVideo(t *testing.T) {
	deps := baseDeps()
	deps.Reports = newFakeReports(model.Report{ID: 1, VideoID: 5})
	_, ok, err := deps.preamble(context.Background(), bus.StepMessage{ReportID: 1}, func(string, ...any) {})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestPreamble_ResolvesBothWhenPresent(t *testing.T) {
	deps := baseDeps()
	deps.Reports = newFakeReports(model.Report{ID: 1, VideoID: 5})
	deps.Videos = newFakeVideos(model.Video{ID: 5, Title: "v"})
	res, ok, err := deps.preamble(context.Background(), bus.StepMessage{ReportID: 1}, func(string, ...any) {})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(1), res.Report.ID)
	require.Equal(t, int64(5), res.Video.ID)
}

// TestOverviewHandler_MetricsPhaseMatchesWorkedExample reproduces the
// SEO/revisit worked example: views=10000, likes=300, avg_duration=120,
// total_duration=300, shares=50, subs_gained=50 -> seo=70.0, revisit=4.00.
func TestOverviewHandler_MetricsPhaseMatchesWorkedExample(t *testing.T) {
	deps := baseDeps()
	deps.Metrics = metrics.New(nil)
	deps.Analytics = &fakeAnalytics{metrics: external.VideoMetrics{
		Views:               10000,
		AverageViewDuration: 120,
		Likes:               300,
		Shares:              50,
		SubscribersGained:   50,
	}}
	fr := newFakeReports(model.Report{ID: 1, VideoID: 5})
	deps.Reports = fr
	video := model.Video{ID: 5, DurationSeconds: 300}
	h := NewOverviewHandler(deps)

	err := h.metricsPhase(context.Background(), model.Report{ID: 1}, video)
	require.NoError(t, err)
	require.Len(t, fr.updates, 1)
	require.NotNil(t, fr.updates[0].SEO)
	require.NotNil(t, fr.updates[0].Revisit)
	require.Equal(t, 70.0, *fr.updates[0].SEO)
	require.Equal(t, 4.00, *fr.updates[0].Revisit)
}

// TestOverviewHandler_CommentsDisabledYieldsZeroCounts reproduces S3:
// commentsDisabled yields all-zero emotion counts and no Comment rows, but
// the sub-phase itself does not fail.
func TestOverviewHandler_CommentsDisabledYieldsZeroCounts(t *testing.T) {
	deps := baseDeps()
	deps.YouTubeData = &fakeYouTubeData{err: errs.ErrCommentsDisabled}
	fc := &fakeComments{}
	deps.Comments = fc
	fr := newFakeReports(model.Report{ID: 1})
	deps.Reports = fr
	deps.CommentEngine = comments.New(nil, "model", config.CommentSamplingConfig{Threshold: 200, Rate: 0.1}, nil)

	h := NewOverviewHandler(deps)
	raw, err := h.fetchComments(context.Background(), "vid1")
	require.NoError(t, err)
	require.Empty(t, raw)

	require.NoError(t, h.commentsPhase(context.Background(), model.Report{ID: 1}, model.Video{YouTubeVideoID: "vid1"}))
	require.Empty(t, fc.rows)
	require.Len(t, fr.updates, 1)
	require.Equal(t, int64(0), *fr.updates[0].PositiveComments)
	require.Equal(t, int64(0), *fr.updates[0].NegativeComments)
	require.Equal(t, int64(0), *fr.updates[0].NeutralComments)
	require.Equal(t, int64(0), *fr.updates[0].AdviceComments)
}

// TestOverviewHandler_SummarySkipsVectorSaveForV2 reproduces S6: a
// skip_vector_save message writes Report.summary but saves no chunk.
func TestOverviewHandler_SummarySkipsVectorSaveForV2(t *testing.T) {
	deps := baseDeps()
	deps.Transcript = &fakeTranscript{segments: []model.TranscriptSegment{{Text: "hello", StartTime: 0, EndTime: 1}}}
	store := &fakeStore{}
	deps.Store = store
	deps.RAG = rag.New(store, fakeProvider{reply: "a summary"}, "model")
	fr := newFakeReports(model.Report{ID: 1})
	deps.Reports = fr
	video := model.Video{ID: 5, Title: "My Video"}

	h := NewOverviewHandler(deps)
	err := h.summary(context.Background(), bus.StepMessage{SkipVectorSave: true}, model.Report{ID: 1}, video)
	require.NoError(t, err)
	require.Empty(t, store.savedContext)
	require.Len(t, fr.updates, 1)
	require.Equal(t, "a summary", *fr.updates[0].Summary)
}

// TestAnalysisHandler_RetentionExhaustionPersistsPlaceholder reproduces S2:
// retention-fetch exhaustion persists the Korean placeholder and the
// sub-phase returns nil so the caller proceeds to algorithm optimization.
func TestAnalysisHandler_RetentionExhaustionPersistsPlaceholder(t *testing.T) {
	deps := baseDeps()
	deps.Analytics = &fakeAnalytics{retentionErr: errs.New(errs.KindTransientExternal, context.DeadlineExceeded)}
	deps.PersistRetentionPlaceholderOnExhaustion = true
	fr := newFakeReports(model.Report{ID: 1})
	deps.Reports = fr

	h := NewAnalysisHandler(deps)
	err := h.retentionAnalysis(context.Background(), bus.StepMessage{}, model.Report{ID: 1}, model.Video{ID: 5})
	require.NoError(t, err)
	require.Len(t, fr.updates, 1)
	require.Equal(t, retentionFailurePlaceholder, *fr.updates[0].LeaveAnalyze)
}

// TestAnalysisHandler_RetentionExhaustionLeavesFieldUntouchedWhenConfigured
// covers the other branch of the documented Open Question.
func TestAnalysisHandler_RetentionExhaustionLeavesFieldUntouchedWhenConfigured(t *testing.T) {
	deps := baseDeps()
	deps.Analytics = &fakeAnalytics{retentionErr: errs.New(errs.KindTransientExternal, context.DeadlineExceeded)}
	deps.PersistRetentionPlaceholderOnExhaustion = false
	fr := newFakeReports(model.Report{ID: 1})
	deps.Reports = fr

	h := NewAnalysisHandler(deps)
	err := h.retentionAnalysis(context.Background(), bus.StepMessage{}, model.Report{ID: 1}, model.Video{ID: 5})
	require.NoError(t, err)
	require.Empty(t, fr.updates)
}

// TestIdeaHandler_V2WithIdeaStepDisabledSkipsWorkflow verifies the idea step
// only marks its axis COMPLETED, without running the trend/idea workflow,
// when a v2 message arrives and RunIdeaStepOnV2 is false.
func TestIdeaHandler_V2WithIdeaStepDisabledSkipsWorkflow(t *testing.T) {
	deps := baseDeps()
	deps.Reports = newFakeReports(model.Report{ID: 1, VideoID: 5})
	deps.Videos = newFakeVideos(model.Video{ID: 5})
	tasks := &fakeTasks{}
	deps.Tasks = tasks
	deps.RunIdeaStepOnV2 = false

	h := NewIdeaHandler(deps)
	err := h.Handle(context.Background(), bus.StepMessage{ReportID: 1, SkipVectorSave: true})
	require.NoError(t, err)
	require.Equal(t, model.TaskCompleted, tasks.idea)
}

func TestRegistry_MapsEachStepToAHandler(t *testing.T) {
	reg := NewRegistry(baseDeps())
	for _, step := range []bus.Step{bus.StepOverview, bus.StepAnalysis, bus.StepIdea} {
		h, ok := reg.For(step)
		require.True(t, ok)
		require.NotNil(t, h)
	}
}
