package settings

import "strings"

// Setting keys consumed by other services.
const (
	KeyEnableDomainMapping  = "enable_domain_mapping"
	KeyForceAdminRedirect   = "force_admin_redirect"
	KeyCustomDomains        = "custom_domains"
	KeyMappingInstructions  = "domain_mapping_instructions"
	KeyStageMaxTries        = "domain_stage_max_tries"
	KeyStageRetryMinutes    = "domain_stage_retry_minutes"
	KeyEnableSSO            = "enable_sso"
	KeyRestrictSSOToLogin   = "restrict_sso_to_login_pages"
	KeyEnableSSOLoadOverlay = "enable_sso_loading_overlay"
)

// Upper bounds of the stage retry settings.
const (
	MaxStageTries   = 100
	MaxRetryMinutes = 7 * 24 * 60
)

// Placeholders replaced in the mapping instructions.
const (
	PlaceholderNetworkDomain = "%NETWORK_DOMAIN%"
	PlaceholderNetworkIP     = "%NETWORK_IP%"
)

// DefaultInstructions is shown when no custom instructions were saved.
func DefaultInstructions() string {
	return strings.Join([]string{
		"Cool! You're about to make this site accessible using your own domain name!",
		"For that to work, you'll need to create a new CNAME record pointing to <code>" + PlaceholderNetworkDomain + "</code> on your DNS manager.",
		"After you finish that step, come back to this screen and click the button below.",
	}, "\n\n")
}

func intPtr(v int) *int { return &v }

// DefaultRegistry registers the domain mapping and single sign-on sections.
func DefaultRegistry(maxTries, retryMinutes int) *Registry {
	r := NewRegistry()

	r.AddSection("domain-mapping", "Domain Mapping Settings", "Define the domain mapping settings for your network.")
	r.AddField("domain-mapping", Field{
		Key:     KeyEnableDomainMapping,
		Title:   "Enable Domain Mapping?",
		Desc:    "Do you want to enable domain mapping?",
		Type:    TypeToggle,
		Default: true,
	})
	r.AddField("domain-mapping", Field{
		Key:     KeyForceAdminRedirect,
		Title:   "Force Admin Redirect",
		Desc:    "Select how you want your users to access the admin panel if they have mapped domains.",
		Type:    TypeSelect,
		Default: "both",
		Require: map[string]any{KeyEnableDomainMapping: true},
		Options: []Option{
			{Value: "both", Label: "Allow access to the admin by both mapped domain and network domain"},
			{Value: "force_map", Label: "Force Redirect to Mapped Domain"},
			{Value: "force_network", Label: "Force Redirect to Network Domain"},
		},
	})
	r.AddField("domain-mapping", Field{
		Key:     KeyCustomDomains,
		Title:   "Enable Custom Domains?",
		Desc:    "Toggle this option if you wish to allow end-customers to add their own domains.",
		Type:    TypeToggle,
		Default: true,
		Require: map[string]any{KeyEnableDomainMapping: true},
	})
	r.AddField("domain-mapping", Field{
		Key:         KeyMappingInstructions,
		Title:       "Add New Domain Instructions",
		Desc:        "You can use the placeholder " + PlaceholderNetworkDomain + " and " + PlaceholderNetworkIP + ".",
		Type:        TypeTextarea,
		DefaultFunc: func() any { return DefaultInstructions() },
		Require:     map[string]any{KeyEnableDomainMapping: true, KeyCustomDomains: true},
	})
	r.AddField("domain-mapping", Field{
		Key:     KeyStageMaxTries,
		Title:   "Verification Attempts",
		Desc:    "How many times DNS and SSL checks are retried before giving up.",
		Type:    TypeNumber,
		Default: maxTries,
		Min:     intPtr(1),
		Max:     intPtr(MaxStageTries),
	})
	r.AddField("domain-mapping", Field{
		Key:     KeyStageRetryMinutes,
		Title:   "Minutes Between Attempts",
		Desc:    "Delay before a failed DNS or SSL check runs again.",
		Type:    TypeNumber,
		Default: retryMinutes,
		Min:     intPtr(1),
		Max:     intPtr(MaxRetryMinutes),
	})

	r.AddSection("sso", "Single Sign-On Settings", "Keep customers and admins logged in across all network domains.")
	r.AddField("sso", Field{
		Key:     KeyEnableSSO,
		Title:   "Enable Single Sign-On",
		Desc:    "Enables the Single Sign-on functionality.",
		Type:    TypeToggle,
		Default: true,
	})
	r.AddField("sso", Field{
		Key:     KeyRestrictSSOToLogin,
		Title:   "Restrict SSO Checks to Login Pages",
		Desc:    "If enabled, SSO will only work on login pages.",
		Type:    TypeToggle,
		Default: false,
		Require: map[string]any{KeyEnableSSO: true},
	})
	r.AddField("sso", Field{
		Key:     KeyEnableSSOLoadOverlay,
		Title:   "Enable SSO Loading Overlay",
		Desc:    "Adds a loading overlay while the SSO auth loopback runs in the background.",
		Type:    TypeToggle,
		Default: true,
		Require: map[string]any{KeyEnableSSO: true},
	})
	return r
}
