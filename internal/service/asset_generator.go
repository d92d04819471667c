package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"storybook-server/internal/models"
)

var (
	assetTasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storybook_asset_tasks_total",
			Help: "Total number of asset generation calls.",
		},
		[]string{"kind", "status"}, // kind: image|narration
	)
	assetTaskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storybook_asset_task_duration_seconds",
			Help:    "Duration of individual asset generation calls.",
			Buckets: prometheus.LinearBuckets(0.5, 0.5, 20),
		},
		[]string{"kind"},
	)
)

// Роли иллюстраций.
const (
	imageRoleCover     = "cover"
	imageRoleHighlight = "highlight"
	imageRoleEnding    = "ending"
)

// AssetBundle — полный набор сгенерированных ассетов одной книжки.
type AssetBundle struct {
	Cover      []byte
	Highlight  []byte
	Ending     []byte
	Narrations map[int][]byte // номер страницы → аудио
}

// AssetGenerator выпускает все генерационные вызовы одной книжки
// конкурентно: три иллюстрации плюс озвучка каждой страницы. Отказ
// отдельного вызова не роняет остальные — он лишь оставляет слот пустым,
// а пустые слоты фатальны только в совокупности.
type AssetGenerator struct {
	images ImageClient
	speech SpeechClient
	logger *zap.Logger
}

// NewAssetGenerator создает оркестратор генерации ассетов.
func NewAssetGenerator(images ImageClient, speech SpeechClient, logger *zap.Logger) *AssetGenerator {
	return &AssetGenerator{
		images: images,
		speech: speech,
		logger: logger.Named("AssetGenerator"),
	}
}

// assetResult — результат одного генерационного вызова.
type assetResult struct {
	kind string // image|narration
	role string // для изображений
	page int    // для озвучки
	data []byte
	err  error
}

// Generate выполняет весь фан-аут и возвращает полный набор ассетов.
// Неполный набор — ошибка фулфилмента (models.ErrFulfillmentIncomplete),
// отличная от ошибки парсера: частичный результат наружу не отдается.
func (g *AssetGenerator) Generate(ctx context.Context, story *models.ParsedStory, language string) (*AssetBundle, error) {
	imagePrompts := map[string]string{
		imageRoleCover:     BuildImagePrompt(story.ImagePrompts.Cover, story),
		imageRoleHighlight: BuildImagePrompt(story.ImagePrompts.Highlight, story),
		imageRoleEnding:    BuildImagePrompt(story.ImagePrompts.End, story),
	}

	// Страницы с непустым текстом озвучки.
	narrated := make([]models.StoryPage, 0, len(story.Pages))
	for _, p := range story.Pages {
		if strings.TrimSpace(p.Narration) != "" {
			narrated = append(narrated, p)
		}
	}

	instructions := NarrationInstructions(language)
	resultsChan := make(chan assetResult, len(imagePrompts)+len(narrated))
	var wg sync.WaitGroup

	for role, prompt := range imagePrompts {
		wg.Add(1)
		go func(role, prompt string) {
			defer wg.Done()
			startTime := time.Now()
			data, err := g.images.Generate(ctx, prompt)
			assetTaskDuration.WithLabelValues("image").Observe(time.Since(startTime).Seconds())
			if err != nil {
				// Отказ вызова превращается в пустой слот, не в панику.
				g.logger.Error("Image generation call failed", zap.String("role", role), zap.Error(err))
				assetTasksTotal.WithLabelValues("image", "error").Inc()
				resultsChan <- assetResult{kind: "image", role: role, err: err}
				return
			}
			assetTasksTotal.WithLabelValues("image", "success").Inc()
			resultsChan <- assetResult{kind: "image", role: role, data: data}
		}(role, prompt)
	}

	for _, page := range narrated {
		wg.Add(1)
		go func(page models.StoryPage) {
			defer wg.Done()
			startTime := time.Now()
			data, err := g.speech.Synthesize(ctx, page.Narration, instructions)
			assetTaskDuration.WithLabelValues("narration").Observe(time.Since(startTime).Seconds())
			if err != nil {
				g.logger.Error("Narration call failed", zap.Int("page", page.Page), zap.Error(err))
				assetTasksTotal.WithLabelValues("narration", "error").Inc()
				resultsChan <- assetResult{kind: "narration", page: page.Page, err: err}
				return
			}
			assetTasksTotal.WithLabelValues("narration", "success").Inc()
			resultsChan <- assetResult{kind: "narration", page: page.Page, data: data}
		}(page)
	}

	wg.Wait()
	close(resultsChan)

	bundle := &AssetBundle{Narrations: make(map[int][]byte, len(narrated))}
	for res := range resultsChan {
		if res.err != nil || len(res.data) == 0 {
			continue
		}
		switch res.kind {
		case "image":
			switch res.role {
			case imageRoleCover:
				bundle.Cover = res.data
			case imageRoleHighlight:
				bundle.Highlight = res.data
			case imageRoleEnding:
				bundle.Ending = res.data
			}
		case "narration":
			bundle.Narrations[res.page] = res.data
		}
	}

	if missing := g.missingSlots(bundle, narrated); len(missing) > 0 {
		g.logger.Error("Asset fulfillment incomplete", zap.Strings("missing", missing))
		return nil, fmt.Errorf("%w: missing %s", models.ErrFulfillmentIncomplete, strings.Join(missing, ", "))
	}

	g.logger.Info("All assets generated",
		zap.Int("images", 3),
		zap.Int("narrations", len(bundle.Narrations)),
	)
	return bundle, nil
}

// missingSlots перечисляет пустые слоты: успех требует всех трех иллюстраций
// и озвучки каждой ожидаемой страницы без пропусков.
func (g *AssetGenerator) missingSlots(bundle *AssetBundle, narrated []models.StoryPage) []string {
	var missing []string
	if len(bundle.Cover) == 0 {
		missing = append(missing, "image:cover")
	}
	if len(bundle.Highlight) == 0 {
		missing = append(missing, "image:highlight")
	}
	if len(bundle.Ending) == 0 {
		missing = append(missing, "image:ending")
	}
	for _, p := range narrated {
		if len(bundle.Narrations[p.Page]) == 0 {
			missing = append(missing, fmt.Sprintf("narration:page_%d", p.Page))
		}
	}
	sort.Strings(missing)
	return missing
}
