package aws

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// RoleName is the IAM role customers create for cross-account access.
const RoleName = "ContractManagerIntegrationRole"

const stackName = "ContractManagerIntegration"

// ErrInvalidRoleARN is returned for ARNs that do not name the integration role.
var ErrInvalidRoleARN = errors.New("invalid role ARN format")

var roleARNPattern = regexp.MustCompile(`^arn:aws:iam::(\d{12}):role/` + RoleName + `$`)

// AccountFromRoleARN validates a role ARN and returns its account id.
func AccountFromRoleARN(arn string) (string, error) {
	m := roleARNPattern.FindStringSubmatch(strings.TrimSpace(arn))
	if m == nil {
		return "", ErrInvalidRoleARN
	}
	return m[1], nil
}

// RoleTemplate builds the CloudFormation template that creates the
// integration role, trusting trustedAccountID when the caller presents
// externalID.
func RoleTemplate(externalID, trustedAccountID string) map[string]any {
	return map[string]any{
		"AWSTemplateFormatVersion": "2010-09-09",
		"Description":              "IAM Role for Contract Manager AWS Integration",
		"Parameters": map[string]any{
			"ExternalId": map[string]any{
				"Type":        "String",
				"Default":     externalID,
				"Description": "External ID for secure role assumption",
			},
			"TrustedAccountId": map[string]any{
				"Type":        "String",
				"Default":     trustedAccountID,
				"Description": "Account ID that can assume this role",
			},
		},
		"Resources": map[string]any{
			"ContractManagerRole": map[string]any{
				"Type": "AWS::IAM::Role",
				"Properties": map[string]any{
					"RoleName": RoleName,
					"AssumeRolePolicyDocument": map[string]any{
						"Version": "2012-10-17",
						"Statement": []any{map[string]any{
							"Effect":    "Allow",
							"Principal": map[string]any{"AWS": map[string]any{"Fn::Sub": "arn:aws:iam::${TrustedAccountId}:root"}},
							"Action":    "sts:AssumeRole",
							"Condition": map[string]any{
								"StringEquals": map[string]any{"sts:ExternalId": map[string]any{"Ref": "ExternalId"}},
							},
						}},
					},
					"ManagedPolicyArns": []string{
						"arn:aws:iam::aws:policy/AWSMarketplaceRead-only",
						"arn:aws:iam::aws:policy/job-function/Billing",
					},
					"Policies": []any{map[string]any{
						"PolicyName": "ContractManagerAccess",
						"PolicyDocument": map[string]any{
							"Version": "2012-10-17",
							"Statement": []any{map[string]any{
								"Effect": "Allow",
								"Action": []string{
									"ce:GetCostAndUsage",
									"ce:GetCostForecast",
									"ce:GetDimensionValues",
									"aws-marketplace:ViewSubscriptions",
									"aws-marketplace:SearchAgreements",
									"aws-marketplace:DescribeAgreement",
									"aws-marketplace:GetAgreementTerms",
									"aws-marketplace:ListEntities",
									"aws-marketplace:DescribeEntity",
									"pricing:GetProducts",
									"ec2:DescribeInstances",
									"ec2:DescribeImages",
								},
								"Resource": "*",
							}},
						},
					}},
				},
			},
		},
		"Outputs": map[string]any{
			"RoleArn": map[string]any{
				"Description": "ARN of the created IAM role",
				"Value":       map[string]any{"Fn::GetAtt": []string{"ContractManagerRole", "Arn"}},
			},
			"ExternalId": map[string]any{
				"Description": "External ID for role assumption",
				"Value":       map[string]any{"Ref": "ExternalId"},
			},
		},
	}
}

// StackURL returns the console quick-create link that deploys template in region.
func StackURL(region, externalID, trustedAccountID string, template map[string]any) (string, error) {
	body, err := json.Marshal(template)
	if err != nil {
		return "", fmt.Errorf("encode template: %w", err)
	}
	q := url.Values{}
	q.Set("templateBody", string(body))
	q.Set("stackName", stackName)
	q.Set("param_ExternalId", externalID)
	q.Set("param_TrustedAccountId", trustedAccountID)
	return fmt.Sprintf("https://console.aws.amazon.com/cloudformation/home?region=%s#/stacks/create/review?%s",
		url.QueryEscape(region), q.Encode()), nil
}
