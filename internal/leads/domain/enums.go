package domain

// Status is the CRM status of a lead.
type Status string

const (
	StatusNew          Status = "new"
	StatusContacted    Status = "contacted"
	StatusQualified    Status = "qualified"
	StatusProposalSent Status = "proposal-sent"
	StatusNegotiation  Status = "negotiation"
	StatusWon          Status = "won"
	StatusLost         Status = "lost"
	StatusOnHold       Status = "on-hold"
	StatusNurturing    Status = "nurturing"
)

var knownStatuses = map[Status]struct{}{
	StatusNew: {}, StatusContacted: {}, StatusQualified: {}, StatusProposalSent: {},
	StatusNegotiation: {}, StatusWon: {}, StatusLost: {}, StatusOnHold: {}, StatusNurturing: {},
}

func (s Status) Valid() bool {
	_, ok := knownStatuses[s]
	return ok
}

// IsClosed is true for won and lost.
func (s Status) IsClosed() bool {
	return s == StatusWon || s == StatusLost
}

// PipelineStage is the marketing funnel position, independent of Status.
type PipelineStage string

const (
	StageAwareness     PipelineStage = "awareness"
	StageInterest      PipelineStage = "interest"
	StageConsideration PipelineStage = "consideration"
	StageIntent        PipelineStage = "intent"
	StageEvaluation    PipelineStage = "evaluation"
	StagePurchase      PipelineStage = "purchase"
	StageRetention     PipelineStage = "retention"

	InitialStage = StageAwareness
)

// Stages lists the funnel in order.
var Stages = []PipelineStage{
	StageAwareness, StageInterest, StageConsideration, StageIntent,
	StageEvaluation, StagePurchase, StageRetention,
}

func (p PipelineStage) Valid() bool {
	for _, s := range Stages {
		if s == p {
			return true
		}
	}
	return false
}

type Source string

const (
	SourceWebsite       Source = "website"
	SourceReferral      Source = "referral"
	SourceSocialMedia   Source = "social-media"
	SourceEmailCampaign Source = "email-campaign"
	SourceColdCall      Source = "cold-call"
	SourceEvent         Source = "event"
	SourceAdvertisement Source = "advertisement"
	SourceImport        Source = "import"
	SourceOther         Source = "other"
)

type ConversionType string

const (
	ConversionCustomer    ConversionType = "customer"
	ConversionOpportunity ConversionType = "opportunity"
	ConversionPartner     ConversionType = "partner"
)

func (c ConversionType) Valid() bool {
	switch c {
	case ConversionCustomer, ConversionOpportunity, ConversionPartner:
		return true
	}
	return false
}
