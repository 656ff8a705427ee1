package marketplace

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/mturk"
	"github.com/aws/aws-sdk-go-v2/service/mturk/types"
	"github.com/mautops/turk-gin/internal/metrics"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"
)

var tracer = otel.Tracer("github.com/mautops/turk-gin/internal/marketplace")

// SandboxEndpoint MTurk 沙箱地址
const SandboxEndpoint = "https://mturk-requester-sandbox.us-east-1.amazonaws.com"

// MTurkAPI MTurk SDK 中本客户端用到的方法子集
type MTurkAPI interface {
	CreateHIT(ctx context.Context, params *mturk.CreateHITInput, optFns ...func(*mturk.Options)) (*mturk.CreateHITOutput, error)
	GetHIT(ctx context.Context, params *mturk.GetHITInput, optFns ...func(*mturk.Options)) (*mturk.GetHITOutput, error)
	GetAssignment(ctx context.Context, params *mturk.GetAssignmentInput, optFns ...func(*mturk.Options)) (*mturk.GetAssignmentOutput, error)
	ListAssignmentsForHIT(ctx context.Context, params *mturk.ListAssignmentsForHITInput, optFns ...func(*mturk.Options)) (*mturk.ListAssignmentsForHITOutput, error)
	UpdateExpirationForHIT(ctx context.Context, params *mturk.UpdateExpirationForHITInput, optFns ...func(*mturk.Options)) (*mturk.UpdateExpirationForHITOutput, error)
	DeleteHIT(ctx context.Context, params *mturk.DeleteHITInput, optFns ...func(*mturk.Options)) (*mturk.DeleteHITOutput, error)
	CreateAdditionalAssignmentsForHIT(ctx context.Context, params *mturk.CreateAdditionalAssignmentsForHITInput, optFns ...func(*mturk.Options)) (*mturk.CreateAdditionalAssignmentsForHITOutput, error)
	ApproveAssignment(ctx context.Context, params *mturk.ApproveAssignmentInput, optFns ...func(*mturk.Options)) (*mturk.ApproveAssignmentOutput, error)
	RejectAssignment(ctx context.Context, params *mturk.RejectAssignmentInput, optFns ...func(*mturk.Options)) (*mturk.RejectAssignmentOutput, error)
}

// MTurkOptions MTurk 客户端配置
type MTurkOptions struct {
	Endpoint          string
	Region            string
	AccessKeyID       string
	SecretAccessKey   string
	ExternalURL       string  // ExternalQuestion 指向的任务页面
	RequestsPerSecond float64 // <= 0 表示不限速
	Burst             int
}

// MTurkClient 基于 aws-sdk-go-v2 的市场客户端
type MTurkClient struct {
	api         MTurkAPI
	externalURL string
	limiter     *rate.Limiter
	logger      logrus.FieldLogger
}

// NewMTurkClient 根据配置创建 SDK 客户端
func NewMTurkClient(ctx context.Context, opts MTurkOptions, logger logrus.FieldLogger) (*MTurkClient, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(opts.Region),
	}
	if opts.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	api := mturk.NewFromConfig(awsCfg, func(o *mturk.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
	})
	logger.WithField("endpoint", opts.Endpoint).Debug("connected to MTurk")
	return NewMTurkClientWithAPI(api, opts, logger), nil
}

// NewMTurkClientWithAPI 使用给定的 SDK 实现创建客户端
func NewMTurkClientWithAPI(api MTurkAPI, opts MTurkOptions, logger logrus.FieldLogger) *MTurkClient {
	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}
	return &MTurkClient{
		api:         api,
		externalURL: opts.ExternalURL,
		limiter:     rate.NewLimiter(limit, burst),
		logger:      logger,
	}
}

// call 统一限速, 记录调用指标和追踪 span
func (c *MTurkClient) call(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	ctx, span := tracer.Start(ctx, "mturk."+operation)
	defer span.End()

	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	err := fn(ctx)
	metrics.RecordMarketplaceCall(operation, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, operation+" failed")
		c.logger.WithError(err).WithField("operation", operation).Warn("MTurk request failed")
		return &RequestError{Operation: operation, Err: err}
	}
	return nil
}

func (c *MTurkClient) CreateHIT(ctx context.Context, params CreateHITParams) (*CreatedHIT, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	question, err := ExternalQuestionXML(c.externalURL, params.FrameHeight)
	if err != nil {
		return nil, err
	}

	input := &mturk.CreateHITInput{
		Question:                    aws.String(question),
		Title:                       aws.String(params.Title),
		Description:                 aws.String(params.Description),
		MaxAssignments:              aws.Int32(int32(params.MaxAssignments)),
		AssignmentDurationInSeconds: aws.Int64(params.AssignmentDurationInSeconds),
		LifetimeInSeconds:           aws.Int64(params.LifetimeInSeconds),
		Reward:                      aws.String(params.Reward),
		QualificationRequirements:   toQualificationRequirements(params.QualificationRequirements),
	}
	if params.Keywords != "" {
		input.Keywords = aws.String(params.Keywords)
	}

	var out *mturk.CreateHITOutput
	err = c.call(ctx, "create_hit", func(ctx context.Context) (err error) {
		out, err = c.api.CreateHIT(ctx, input)
		return err
	})
	if err != nil {
		return nil, err
	}
	created := &CreatedHIT{
		HITID:     aws.ToString(out.HIT.HITId),
		HITTypeID: aws.ToString(out.HIT.HITTypeId),
	}
	c.logger.WithFields(logrus.Fields{
		"hit_id":      created.HITID,
		"hit_type_id": created.HITTypeID,
	}).Debug("HIT created")
	return created, nil
}

func (c *MTurkClient) GetHIT(ctx context.Context, hitID string) (*HIT, error) {
	var out *mturk.GetHITOutput
	err := c.call(ctx, "get_hit", func(ctx context.Context) (err error) {
		out, err = c.api.GetHIT(ctx, &mturk.GetHITInput{HITId: aws.String(hitID)})
		return err
	})
	if err != nil {
		return nil, err
	}
	return fromHIT(out.HIT), nil
}

func (c *MTurkClient) GetAssignment(ctx context.Context, assignmentID string) (*Assignment, error) {
	var out *mturk.GetAssignmentOutput
	err := c.call(ctx, "get_assignment", func(ctx context.Context) (err error) {
		out, err = c.api.GetAssignment(ctx, &mturk.GetAssignmentInput{AssignmentId: aws.String(assignmentID)})
		return err
	})
	if err != nil {
		return nil, err
	}
	if out.Assignment == nil {
		return nil, fmt.Errorf("%w: assignment %s", ErrNotFound, assignmentID)
	}
	return fromAssignment(out.Assignment), nil
}

func (c *MTurkClient) ListAssignmentsForHIT(ctx context.Context, hitID string) ([]*Assignment, error) {
	paginator := mturk.NewListAssignmentsForHITPaginator(c.api, &mturk.ListAssignmentsForHITInput{
		HITId:      aws.String(hitID),
		MaxResults: aws.Int32(100),
	})

	var result []*Assignment
	for paginator.HasMorePages() {
		var page *mturk.ListAssignmentsForHITOutput
		err := c.call(ctx, "list_assignments_for_hit", func(ctx context.Context) (err error) {
			page, err = paginator.NextPage(ctx)
			return err
		})
		if err != nil {
			return nil, err
		}
		for i := range page.Assignments {
			result = append(result, fromAssignment(&page.Assignments[i]))
		}
	}
	return result, nil
}

func (c *MTurkClient) ExpireHIT(ctx context.Context, hitID string, at time.Time) error {
	return c.updateExpiration(ctx, "expire_hit", hitID, at)
}

func (c *MTurkClient) RenewHIT(ctx context.Context, hitID string, expiry time.Time) error {
	c.logger.WithFields(logrus.Fields{"hit_id": hitID, "expiry": expiry}).Info("updating HIT expiry")
	return c.updateExpiration(ctx, "renew_hit", hitID, expiry)
}

func (c *MTurkClient) updateExpiration(ctx context.Context, operation, hitID string, at time.Time) error {
	return c.call(ctx, operation, func(ctx context.Context) error {
		_, err := c.api.UpdateExpirationForHIT(ctx, &mturk.UpdateExpirationForHITInput{
			HITId:    aws.String(hitID),
			ExpireAt: aws.Time(at),
		})
		return err
	})
}

func (c *MTurkClient) DeleteHIT(ctx context.Context, hitID string) error {
	return c.call(ctx, "delete_hit", func(ctx context.Context) error {
		_, err := c.api.DeleteHIT(ctx, &mturk.DeleteHITInput{HITId: aws.String(hitID)})
		return err
	})
}

func (c *MTurkClient) CreateAdditionalAssignments(ctx context.Context, hitID string, count int, token string) error {
	input := &mturk.CreateAdditionalAssignmentsForHITInput{
		HITId:                         aws.String(hitID),
		NumberOfAdditionalAssignments: aws.Int32(int32(count)),
	}
	if token != "" {
		input.UniqueRequestToken = aws.String(token)
	}
	c.logger.WithFields(logrus.Fields{"hit_id": hitID, "count": count}).Info("incrementing HIT assignments")
	return c.call(ctx, "create_additional_assignments", func(ctx context.Context) error {
		_, err := c.api.CreateAdditionalAssignmentsForHIT(ctx, input)
		return err
	})
}

func (c *MTurkClient) ApproveAssignment(ctx context.Context, assignmentID string, feedback string) error {
	input := &mturk.ApproveAssignmentInput{AssignmentId: aws.String(assignmentID)}
	if feedback != "" {
		input.RequesterFeedback = aws.String(feedback)
	}
	return c.call(ctx, "approve_assignment", func(ctx context.Context) error {
		_, err := c.api.ApproveAssignment(ctx, input)
		return err
	})
}

func (c *MTurkClient) RejectAssignment(ctx context.Context, assignmentID string, message string) error {
	if message == "" {
		message = "Your submission did not meet the task requirements."
	}
	return c.call(ctx, "reject_assignment", func(ctx context.Context) error {
		_, err := c.api.RejectAssignment(ctx, &mturk.RejectAssignmentInput{
			AssignmentId:      aws.String(assignmentID),
			RequesterFeedback: aws.String(message),
		})
		return err
	})
}

func fromHIT(h *types.HIT) *HIT {
	if h == nil {
		return &HIT{}
	}
	return &HIT{
		ID:              aws.ToString(h.HITId),
		TypeID:          aws.ToString(h.HITTypeId),
		Status:          HITStatus(h.HITStatus),
		MaxAssignments:  int(aws.ToInt32(h.MaxAssignments)),
		NumberAvailable: int(aws.ToInt32(h.NumberOfAssignmentsAvailable)),
		NumberCompleted: int(aws.ToInt32(h.NumberOfAssignmentsCompleted)),
		NumberPending:   int(aws.ToInt32(h.NumberOfAssignmentsPending)),
		Expiration:      aws.ToTime(h.Expiration),
	}
}

func fromAssignment(a *types.Assignment) *Assignment {
	return &Assignment{
		ID:        aws.ToString(a.AssignmentId),
		HITID:     aws.ToString(a.HITId),
		WorkerID:  aws.ToString(a.WorkerId),
		Status:    AssignmentStatus(a.AssignmentStatus),
		RawAnswer: aws.ToString(a.Answer),
	}
}

func toQualificationRequirements(reqs []QualificationRequirement) []types.QualificationRequirement {
	if len(reqs) == 0 {
		return nil
	}
	result := make([]types.QualificationRequirement, 0, len(reqs))
	for _, req := range reqs {
		qr := types.QualificationRequirement{
			QualificationTypeId: aws.String(req.QualificationTypeID),
			Comparator:          types.Comparator(req.Comparator),
			IntegerValues:       req.IntegerValues,
		}
		for _, country := range req.Countries {
			qr.LocaleValues = append(qr.LocaleValues, types.Locale{Country: aws.String(country)})
		}
		if req.ActionsGuarded != "" {
			qr.ActionsGuarded = types.HITAccessActions(req.ActionsGuarded)
		}
		result = append(result, qr)
	}
	return result
}
