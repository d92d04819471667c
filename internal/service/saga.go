package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"storybook-server/internal/models"
	"storybook-server/internal/storage"
	"storybook-server/internal/store"
)

// AssetUpload — один бинарный ассет для объектного хранилища.
type AssetUpload struct {
	Key         string
	ContentType string
	Data        []byte
}

// PersistenceBundle — все, что сага записывает для одной книжки.
type PersistenceBundle struct {
	Storybook     *models.Storybook
	OriginDetails []models.OriginDetail
	OutputDetails []models.OutputDetail
	Uploads       []AssetUpload
}

// sagaStep — пара (прямое действие, компенсация). Компенсация nil, когда
// откатывать нечего.
type sagaStep struct {
	name       string
	run        func(ctx context.Context) error
	compensate func(ctx context.Context) error
}

// PersistenceSaga пишет книжку и ее детальные строки как явную
// последовательность шагов с компенсирующими удалениями. Хранилище доступно
// только через REST без межтабличных транзакций, поэтому атомарность
// собирается вручную: шаги строго последовательны, откат идет в обратном
// порядке и выполняется best-effort — наружу всегда уходит исходная ошибка.
type PersistenceSaga struct {
	repo    store.StorybookRepository
	objects storage.ObjectStorage
	logger  *zap.Logger
}

// NewPersistenceSaga создает сагу персистентности.
func NewPersistenceSaga(repo store.StorybookRepository, objects storage.ObjectStorage, logger *zap.Logger) *PersistenceSaga {
	return &PersistenceSaga{
		repo:    repo,
		objects: objects,
		logger:  logger.Named("PersistenceSaga"),
	}
}

// Execute прогоняет сагу. При отказе шага возвращается ошибка, оборачивающая
// models.ErrPersistenceFailed с именем упавшего шага.
func (s *PersistenceSaga) Execute(ctx context.Context, bundle *PersistenceBundle) error {
	steps := s.buildSteps(bundle)

	for i, step := range steps {
		if err := step.run(ctx); err != nil {
			s.logger.Error("Saga step failed, rolling back",
				zap.String("step", step.name),
				zap.String("storybook_id", bundle.Storybook.ID),
				zap.Error(err),
			)
			s.rollback(ctx, steps[:i])
			return fmt.Errorf("%w: stage %s: %v", models.ErrPersistenceFailed, step.name, err)
		}
	}
	return nil
}

func (s *PersistenceSaga) buildSteps(bundle *PersistenceBundle) []sagaStep {
	return []sagaStep{
		{
			// Все загрузки до первой записи в БД: отказ здесь не оставляет
			// осиротевших строк, компенсация не нужна.
			name: "upload_assets",
			run: func(ctx context.Context) error {
				for _, up := range bundle.Uploads {
					if err := s.objects.Put(ctx, up.Key, up.ContentType, up.Data); err != nil {
						return err
					}
				}
				return nil
			},
		},
		{
			name: "insert_storybook",
			run: func(ctx context.Context) error {
				return s.repo.Insert(ctx, bundle.Storybook)
			},
			compensate: func(ctx context.Context) error {
				return s.repo.DeleteStorybook(ctx, bundle.Storybook.ID)
			},
		},
		{
			name: "insert_origin_details",
			run: func(ctx context.Context) error {
				return s.repo.InsertOriginDetails(ctx, bundle.OriginDetails)
			},
			compensate: func(ctx context.Context) error {
				return s.repo.DeleteOriginDetails(ctx, bundle.Storybook.ID)
			},
		},
		{
			name: "insert_output_details",
			run: func(ctx context.Context) error {
				return s.repo.InsertOutputDetails(ctx, bundle.OutputDetails)
			},
			compensate: func(ctx context.Context) error {
				return s.repo.DeleteOutputDetails(ctx, bundle.Storybook.ID)
			},
		},
	}
}

// rollback выполняет компенсации выполненных шагов в обратном порядке.
// Ошибки компенсаций логируются и не пробрасываются: вызывающий должен
// увидеть исходную причину отказа.
func (s *PersistenceSaga) rollback(ctx context.Context, completed []sagaStep) {
	for i := len(completed) - 1; i >= 0; i-- {
		step := completed[i]
		if step.compensate == nil {
			continue
		}
		if err := step.compensate(ctx); err != nil {
			s.logger.Error("Saga compensation failed",
				zap.String("step", step.name),
				zap.Error(err),
			)
		}
	}
}
