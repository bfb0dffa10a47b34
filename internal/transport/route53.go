package transport

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/route53"
	"github.com/aws/aws-sdk-go-v2/service/route53/types"

	"dnsmanager/internal/config"
	"dnsmanager/internal/model"
)

// Route53API is the subset of the Route53 client used here.
type Route53API interface {
	ListResourceRecordSets(ctx context.Context, in *route53.ListResourceRecordSetsInput, optFns ...func(*route53.Options)) (*route53.ListResourceRecordSetsOutput, error)
	ChangeResourceRecordSets(ctx context.Context, in *route53.ChangeResourceRecordSetsInput, optFns ...func(*route53.Options)) (*route53.ChangeResourceRecordSetsOutput, error)
}

// Route53 serves domains whose master is a hosted zone id. Route53 stores
// whole record sets, so single-record adds and deletes are applied by
// rewriting the set.
type Route53 struct {
	client Route53API
}

func NewRoute53(ctx context.Context, cfg config.AWSConfig) (*Route53, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewRoute53WithClient(route53.NewFromConfig(awsCfg)), nil
}

func NewRoute53WithClient(client Route53API) *Route53 {
	return &Route53{client: client}
}

func (r *Route53) Transfer(ctx context.Context, m model.Master) ([]model.ZoneRecord, error) {
	var (
		records  []model.ZoneRecord
		nextName *string
		nextType types.RRType
	)
	for {
		input := &route53.ListResourceRecordSetsInput{
			HostedZoneId: aws.String(zoneID(m.Address)),
		}
		if nextName != nil {
			input.StartRecordName = nextName
			input.StartRecordType = nextType
		}

		result, err := r.client.ListResourceRecordSets(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("list record sets of %s: %w", m.Zone, err)
		}

		for _, rrs := range result.ResourceRecordSets {
			// Alias targets have no rdata of their own.
			if rrs.AliasTarget != nil {
				continue
			}
			var ttl int64
			if rrs.TTL != nil {
				ttl = *rrs.TTL
			}
			for _, v := range rrs.ResourceRecords {
				records = append(records, model.ZoneRecord{
					Name:  unescapeName(aws.ToString(rrs.Name)),
					TTL:   ttl,
					Class: "IN",
					Type:  string(rrs.Type),
					Data:  aws.ToString(v.Value),
				})
			}
		}

		if !result.IsTruncated {
			break
		}
		nextName = result.NextRecordName
		nextType = result.NextRecordType
	}
	return records, nil
}

func (r *Route53) Resolve(ctx context.Context, m model.Master, fqdn, rrType string) ([]string, error) {
	set, err := r.recordSet(ctx, m, fqdn, rrType)
	if err != nil || set == nil {
		return nil, err
	}
	var out []string
	for _, v := range set.ResourceRecords {
		out = append(out, aws.ToString(v.Value))
	}
	return out, nil
}

func (r *Route53) Update(ctx context.Context, m model.Master, ch model.Change) error {
	name := model.Fqdn(ch.FQDN)
	rrType := strings.ToUpper(ch.Type)

	var values []string
	switch ch.Op {
	case model.OpUpdate:
		values = []string{ch.Data}
	case model.OpAdd, model.OpDelete:
		set, err := r.recordSet(ctx, m, name, rrType)
		if err != nil {
			return err
		}
		if set != nil {
			for _, v := range set.ResourceRecords {
				values = append(values, aws.ToString(v.Value))
			}
		}
		if ch.Op == model.OpAdd {
			values = appendValue(values, ch.Data)
		} else {
			values = removeValue(values, ch.Data)
			if set == nil || len(values) == len(set.ResourceRecords) {
				// Deleting a record that is not there is a no-op, as on a DNS master.
				return nil
			}
			if len(values) == 0 {
				return r.change(ctx, m, types.ChangeActionDelete, set)
			}
		}
	default:
		return fmt.Errorf("update: unknown operation %q", ch.Op)
	}

	rrs := &types.ResourceRecordSet{
		Name: aws.String(name),
		Type: types.RRType(rrType),
		TTL:  aws.Int64(ch.TTL),
	}
	for _, v := range values {
		rrs.ResourceRecords = append(rrs.ResourceRecords, types.ResourceRecord{Value: aws.String(v)})
	}
	return r.change(ctx, m, types.ChangeActionUpsert, rrs)
}

func (r *Route53) change(ctx context.Context, m model.Master, action types.ChangeAction, rrs *types.ResourceRecordSet) error {
	_, err := r.client.ChangeResourceRecordSets(ctx, &route53.ChangeResourceRecordSetsInput{
		HostedZoneId: aws.String(zoneID(m.Address)),
		ChangeBatch: &types.ChangeBatch{
			Comment: aws.String("Changed via dnsmanager"),
			Changes: []types.Change{{Action: action, ResourceRecordSet: rrs}},
		},
	})
	if err != nil {
		return fmt.Errorf("change %s %s in %s: %w", aws.ToString(rrs.Name), rrs.Type, m.Zone, err)
	}
	return nil
}

// recordSet returns the set for name and type, or nil when there is none.
func (r *Route53) recordSet(ctx context.Context, m model.Master, name, rrType string) (*types.ResourceRecordSet, error) {
	name = model.Fqdn(name)
	result, err := r.client.ListResourceRecordSets(ctx, &route53.ListResourceRecordSetsInput{
		HostedZoneId:    aws.String(zoneID(m.Address)),
		StartRecordName: aws.String(name),
		StartRecordType: types.RRType(strings.ToUpper(rrType)),
		MaxItems:        aws.Int32(1),
	})
	if err != nil {
		return nil, fmt.Errorf("lookup %s %s in %s: %w", name, rrType, m.Zone, err)
	}
	for _, rrs := range result.ResourceRecordSets {
		if strings.EqualFold(unescapeName(aws.ToString(rrs.Name)), name) && strings.EqualFold(string(rrs.Type), rrType) {
			return &rrs, nil
		}
	}
	return nil, nil
}

func appendValue(values []string, v string) []string {
	for _, existing := range values {
		if existing == v {
			return values
		}
	}
	return append(values, v)
}

func removeValue(values []string, v string) []string {
	out := values[:0:0]
	for _, existing := range values {
		if existing != v {
			out = append(out, existing)
		}
	}
	return out
}

// zoneID accepts both "Z123" and "/hostedzone/Z123".
func zoneID(fullID string) string {
	parts := strings.Split(strings.TrimSpace(fullID), "/")
	return parts[len(parts)-1]
}

// Route53 returns "*" as the octal escape \052.
func unescapeName(name string) string {
	return strings.ReplaceAll(name, `\052`, "*")
}
