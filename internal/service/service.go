// Package service реализует бизнес-логику леджера накопительных целей.
//
// Каждая изменяющая операция выполняется в одной транзакции хранилища в порядке
// проверки → изменение учётных записей → переводы → события. Ошибка на любом шаге
// откатывает транзакцию целиком.
package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/mmeshcher/goalsaver/internal/interest"
	"github.com/mmeshcher/goalsaver/internal/model"
	"github.com/mmeshcher/goalsaver/internal/penalty"
	"github.com/mmeshcher/goalsaver/internal/rateoracle"
	"github.com/mmeshcher/goalsaver/internal/repository"
	"github.com/mmeshcher/goalsaver/internal/rewards"
	"github.com/mmeshcher/goalsaver/internal/validation"
)

// ErrInvalidCredentials возвращается при неверной паре аккаунт/пароль.
var ErrInvalidCredentials = errors.New("invalid credentials")

const (
	// DefaultEventsLimit — размер страницы журнала по умолчанию.
	DefaultEventsLimit = 100
	// MaxEventsLimit — максимальный размер страницы журнала.
	MaxEventsLimit = 1000
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	InTx(ctx context.Context, fn func(tx repository.Tx) error) error
	CreateUser(ctx context.Context, account string, passwordHash []byte) (int64, error)
	GetUserByAccount(ctx context.Context, account string) (*model.User, error)
	ListEvents(ctx context.Context, afterID int64, limit int) ([]model.Event, error)
}

// Options содержит параметры леджера, зафиксированные конфигурацией.
type Options struct {
	Penalty        *penalty.Calculator
	Catalog        *rewards.Catalog
	PayoutPolicy   model.PayoutPolicy
	DefaultRateBps uint64
	OracleInterval time.Duration
}

// Service содержит бизнес-логику леджера.
type Service struct {
	repo    Repository
	opts    Options
	oracle  *rateoracle.Client
	logger  *zap.Logger
	now     func() time.Time
	newCall func() string
}

// NewService создаёт сервис с указанным репозиторием, параметрами и клиентом оракула ставки.
func NewService(repo Repository, opts Options, oracle *rateoracle.Client, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.PayoutPolicy == "" {
		opts.PayoutPolicy = model.PayoutProportional
	}
	if opts.OracleInterval <= 0 {
		opts.OracleInterval = time.Minute
	}
	return &Service{
		repo:    repo,
		opts:    opts,
		oracle:  oracle,
		logger:  logger,
		now:     time.Now,
		newCall: uuid.NewString,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// call — состояние одного атомарного вызова леджера.
type call struct {
	ctx context.Context
	tx  repository.Tx
	id  string
	now time.Time
}

func (s *Service) run(ctx context.Context, fn func(c *call) error) error {
	return s.repo.InTx(ctx, func(tx repository.Tx) error {
		return fn(&call{
			ctx: ctx,
			tx:  tx,
			id:  s.newCall(),
			now: s.now().UTC().Truncate(time.Second),
		})
	})
}

func (c *call) emit(kind model.EventKind, account string, podID *int64, data map[string]string) error {
	_, err := c.tx.AppendEvent(c.ctx, &model.Event{
		CallID:    c.id,
		Kind:      kind,
		Account:   account,
		PodID:     podID,
		Data:      data,
		CreatedAt: c.now,
	})
	return err
}

// transfer переводит amount между кошельками. Нехватка средств у from — model.ErrInsufficientBalance.
func (c *call) transfer(from, to string, amount *uint256.Int) error {
	if amount.IsZero() || from == to {
		return nil
	}

	fromBalance, err := c.tx.WalletBalance(c.ctx, from)
	if err != nil {
		return err
	}
	debited, err := model.SubChecked(fromBalance, amount)
	if err != nil {
		return fmt.Errorf("transfer from %s: %w", from, err)
	}

	toBalance, err := c.tx.WalletBalance(c.ctx, to)
	if err != nil {
		return err
	}
	credited, err := model.AddChecked(toBalance, amount)
	if err != nil {
		return fmt.Errorf("transfer to %s: %w", to, err)
	}

	if err := c.tx.SetWalletBalance(c.ctx, from, debited); err != nil {
		return err
	}
	return c.tx.SetWalletBalance(c.ctx, to, credited)
}

func (s *Service) interestRate(c *call) (uint64, error) {
	rate, ok, err := c.tx.InterestRate(c.ctx)
	if err != nil {
		return 0, err
	}
	if !ok {
		return s.opts.DefaultRateBps, nil
	}
	return rate, nil
}

func normalizeAccount(account string) (string, error) {
	normalized, ok := validation.NormalizeAccount(account)
	if !ok {
		return "", fmt.Errorf("%w: %q", model.ErrInvalidAccount, account)
	}
	return normalized, nil
}

// RegisterUser регистрирует владельца аккаунта.
func (s *Service) RegisterUser(ctx context.Context, account, password string) (string, error) {
	account, err := normalizeAccount(account)
	if err != nil {
		return "", err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}

	if _, err := s.repo.CreateUser(ctx, account, hashed); err != nil {
		return "", err
	}
	return account, nil
}

// AuthenticateUser проверяет пароль и возвращает нормализованный адрес аккаунта.
func (s *Service) AuthenticateUser(ctx context.Context, account, password string) (string, error) {
	account, err := normalizeAccount(account)
	if err != nil {
		return "", err
	}

	u, err := s.repo.GetUserByAccount(ctx, account)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return "", ErrInvalidCredentials
		}
		return "", err
	}

	if err := bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}

	return u.Account, nil
}

// FundWallet зачисляет средства, пришедшие из внешнего кошелька, на баланс аккаунта
// или в резерв процентов.
func (s *Service) FundWallet(ctx context.Context, account string, amount *uint256.Int) (*uint256.Int, error) {
	if account != model.ReserveAccount {
		var err error
		if account, err = normalizeAccount(account); err != nil {
			return nil, err
		}
	}
	if amount.IsZero() {
		return nil, model.ErrInvalidAmount
	}

	var balance *uint256.Int
	err := s.run(ctx, func(c *call) error {
		current, err := c.tx.WalletBalance(ctx, account)
		if err != nil {
			return err
		}
		if balance, err = model.AddChecked(current, amount); err != nil {
			return err
		}
		return c.tx.SetWalletBalance(ctx, account, balance)
	})
	if err != nil {
		return nil, err
	}
	return balance, nil
}

// GetWallet возвращает баланс кошелька аккаунта.
func (s *Service) GetWallet(ctx context.Context, account string) (*uint256.Int, error) {
	var balance *uint256.Int
	err := s.run(ctx, func(c *call) error {
		var err error
		balance, err = c.tx.WalletBalance(ctx, account)
		return err
	})
	if err != nil {
		return nil, err
	}
	return balance, nil
}

// GetCurrentInterestRate возвращает текущую ставку в базисных пунктах.
func (s *Service) GetCurrentInterestRate(ctx context.Context) (uint64, error) {
	var rate uint64
	err := s.run(ctx, func(c *call) error {
		var err error
		rate, err = s.interestRate(c)
		return err
	})
	return rate, err
}

// SetInterestRate устанавливает ставку для всех целей.
func (s *Service) SetInterestRate(ctx context.Context, rateBps uint64) error {
	if err := interest.ValidateRate(rateBps); err != nil {
		return err
	}

	return s.run(ctx, func(c *call) error {
		prev, err := s.interestRate(c)
		if err != nil {
			return err
		}
		if prev == rateBps {
			return nil
		}
		if err := c.tx.SetInterestRate(ctx, rateBps); err != nil {
			return err
		}
		return c.emit(model.EventInterestRateChanged, model.ReserveAccount, nil, map[string]string{
			"previous_bps": strconv.FormatUint(prev, 10),
			"rate_bps":     strconv.FormatUint(rateBps, 10),
		})
	})
}

// ListEvents возвращает страницу журнала событий после afterID.
func (s *Service) ListEvents(ctx context.Context, afterID int64, limit int) ([]model.Event, error) {
	if limit <= 0 {
		limit = DefaultEventsLimit
	}
	if limit > MaxEventsLimit {
		limit = MaxEventsLimit
	}
	return s.repo.ListEvents(ctx, afterID, limit)
}

// StartRateUpdates запускает фоновый опрос оракула ставки.
func (s *Service) StartRateUpdates(ctx context.Context) {
	if s.oracle == nil {
		return
	}

	go func() {
		ticker := time.NewTicker(s.opts.OracleInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.pollRate(ctx)
			}
		}
	}()
}

func (s *Service) pollRate(ctx context.Context) {
	resp, statusCode, retryAfter, err := s.oracle.GetRate(ctx)
	if err != nil {
		s.logger.Warn("rate oracle request failed", zap.Error(err))
		return
	}

	if statusCode == 429 {
		if retryAfter > 0 {
			timer := time.NewTimer(retryAfter)
			select {
			case <-ctx.Done():
				timer.Stop()
			case <-timer.C:
			}
		}
		return
	}

	if resp == nil {
		return
	}

	if err := s.SetInterestRate(ctx, resp.RateBps); err != nil {
		s.logger.Error("apply oracle rate failed", zap.Error(err), zap.Uint64("rateBps", resp.RateBps))
	}
}
