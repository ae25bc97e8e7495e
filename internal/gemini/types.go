package gemini

// Wire types for the Generative Language REST API. Only the fields the client
// reads or writes are declared.

type part struct {
	Text       string `json:"text,omitempty"`
	InlineData *blob  `json:"inlineData,omitempty"`
}

type blob struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type schema struct {
	Type        string             `json:"type"`
	Description string             `json:"description,omitempty"`
	Properties  map[string]*schema `json:"properties,omitempty"`
	Items       *schema            `json:"items,omitempty"`
	Required    []string           `json:"required,omitempty"`
}

type generationConfig struct {
	ResponseMIMEType   string   `json:"responseMimeType,omitempty"`
	ResponseSchema     *schema  `json:"responseSchema,omitempty"`
	ResponseModalities []string `json:"responseModalities,omitempty"`
}

type generateContentRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type candidate struct {
	Content      content `json:"content"`
	FinishReason string  `json:"finishReason,omitempty"`
}

type generateContentResponse struct {
	Candidates     []candidate `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason,omitempty"`
	} `json:"promptFeedback,omitempty"`
}

type imageBytes struct {
	BytesBase64Encoded string `json:"bytesBase64Encoded"`
	MIMEType           string `json:"mimeType,omitempty"`
}

type predictInstance struct {
	Prompt string      `json:"prompt"`
	Image  *imageBytes `json:"image,omitempty"`
}

type predictParameters struct {
	SampleCount int    `json:"sampleCount,omitempty"`
	AspectRatio string `json:"aspectRatio,omitempty"`
}

type predictRequest struct {
	Instances  []predictInstance `json:"instances"`
	Parameters predictParameters `json:"parameters"`
}

type predictResponse struct {
	Predictions []imageBytes `json:"predictions"`
}

type generatedSample struct {
	Video struct {
		URI string `json:"uri"`
	} `json:"video"`
}

type operation struct {
	Name     string     `json:"name"`
	Done     bool       `json:"done"`
	Error    *rpcStatus `json:"error,omitempty"`
	Response *struct {
		GenerateVideoResponse struct {
			GeneratedSamples        []generatedSample `json:"generatedSamples"`
			RAIMediaFilteredReasons []string          `json:"raiMediaFilteredReasons,omitempty"`
		} `json:"generateVideoResponse"`
	} `json:"response,omitempty"`
}

type rpcStatus struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status,omitempty"`
	Details []struct {
		Reason string `json:"reason,omitempty"`
	} `json:"details,omitempty"`
}

type errorEnvelope struct {
	Error rpcStatus `json:"error"`
}

// descriptionPayload is the JSON document requested from the text model.
type descriptionPayload struct {
	Areas []struct {
		Area           string `json:"area"`
		Description    string `json:"description"`
		BudgetEstimate string `json:"budgetEstimate"`
	} `json:"areas"`
	TrendAnalysis string `json:"trendAnalysis"`
	Budget        *struct {
		OverallEstimate string `json:"overallEstimate"`
		Summary         string `json:"summary"`
	} `json:"budget"`
}

var descriptionSchema = &schema{
	Type: "OBJECT",
	Properties: map[string]*schema{
		"areas": {
			Type: "ARRAY",
			Items: &schema{
				Type: "OBJECT",
				Properties: map[string]*schema{
					"area":           {Type: "STRING", Description: "Name of the house area, e.g. 'Exterior', 'Kitchen'."},
					"description":    {Type: "STRING", Description: "Detailed, evocative description of this area."},
					"budgetEstimate": {Type: "STRING", Description: "Estimated cost to build and furnish this area."},
				},
				Required: []string{"area", "description"},
			},
		},
		"trendAnalysis": {Type: "STRING", Description: "Current residential design trends in the client's country."},
		"budget": {
			Type: "OBJECT",
			Properties: map[string]*schema{
				"overallEstimate": {Type: "STRING"},
				"summary":         {Type: "STRING"},
			},
			Required: []string{"overallEstimate", "summary"},
		},
	},
	Required: []string{"areas"},
}
