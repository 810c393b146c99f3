package patterns

// =============================================================================
// PATTERN DEFINITIONS BY CATEGORY
// All patterns are registered here and compiled once at package init.
// Registration order matters: equal severity weights resolve to the category
// registered first, so the most damaging categories come first.
// =============================================================================

// --- SECRETS EXFILTRATION (weight 0.95) ---
func (r *Registry) registerSecretsPatterns() {
	set := r.category(CategorySecrets, 0.95)

	// OpenAI / Anthropic keys
	r.regex(set, "openai_api_key", `sk-[a-zA-Z0-9]{20,}`, "OpenAI API Key")
	r.regex(set, "openai_proj_key", `sk-proj-[a-zA-Z0-9\-_]{20,}`, "OpenAI Project Key")
	r.regex(set, "openai_org_key", `sk-org-[a-zA-Z0-9\-_]{20,}`, "OpenAI Organization Key")
	r.regex(set, "anthropic_api_key", `sk-ant-[a-zA-Z0-9\-_]{20,}`, "Anthropic API Key")

	// Google
	r.regex(set, "google_api_key", `AIza[a-zA-Z0-9\-_]{35}`, "Google API Key")
	r.regex(set, "google_oauth", `ya29\.[a-zA-Z0-9\-_]+`, "Google OAuth Token")

	// AWS
	r.regex(set, "aws_access_key", `(AKIA|ABIA|ACCA|ASIA)[0-9A-Z]{16}`, "AWS Access Key ID")

	// Azure (require credential context to avoid matching every UUID)
	r.regex(set, "azure_credential_id", `(?i)(client[_\-]?id|tenant[_\-]?id|subscription[_\-]?id|azure[_\-]?key)\s*[=:]\s*['"]?[a-f0-9]{8}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{12}`, "Azure credential in context")

	// GitHub
	r.regex(set, "github_token", `gh[pous]_[a-zA-Z0-9]{36}`, "GitHub Token")

	// Stripe
	r.regex(set, "stripe_secret_key", `sk_(live|test)_[a-zA-Z0-9]{24,}`, "Stripe Secret Key")
	r.regex(set, "stripe_public_key", `pk_live_[a-zA-Z0-9]{24,}`, "Stripe Public Key")

	// Slack
	r.regex(set, "slack_token", `xox[baprs]-[a-zA-Z0-9\-]+`, "Slack Token")

	// Database connection strings
	r.regex(set, "mongodb_uri", `(?i)mongodb(\+srv)?://[^\s]+`, "MongoDB Connection String")
	r.regex(set, "postgres_uri", `(?i)postgres(ql)?://[^\s]+`, "PostgreSQL Connection String")
	r.regex(set, "mysql_uri", `(?i)mysql://[^\s]+`, "MySQL Connection String")
	r.regex(set, "redis_uri", `(?i)redis://[^\s]+`, "Redis Connection String")
	r.regex(set, "jdbc_uri", `(?i)jdbc:[a-z]+://[^\s]+`, "JDBC Connection String")

	// Private keys
	r.regex(set, "private_key_block", `(?i)-----BEGIN\s+(RSA|DSA|EC|OPENSSH|PGP)\s+PRIVATE\s+KEY`, "Private key block")

	// Generic credential assignment
	r.regex(set, "generic_secret_assign", `(?i)["']?[a-zA-Z_]*(api|key|token|secret|password|pwd|pass)[a-zA-Z_]*["']?\s*[=:]\s*["']?[a-zA-Z0-9\-_]{16,}["']?`, "Generic credential assignment")

	// Credential indicator keywords
	r.keywords(set, "api_key_indicator", "API key indicator",
		"api_key=", "api-key=", "apikey=", "api_key:", "api-key:", "apikey:",
		"api_key =", "api-key =", "apikey =")
	r.keywords(set, "password_indicator", "Password indicator",
		"password=", "password:", "password =", "passwd=", "passwd:", "pwd=", "pwd:")
	r.keywords(set, "secret_indicator", "Secret indicator",
		"secret=", "secret:", "secret =", "secret_key=", "secret-key=",
		"client_secret", "client-secret")
	r.keywords(set, "token_indicator", "Token indicator",
		"token=", "token:", "token =", "auth_token", "auth-token",
		"access_token", "access-token", "refresh_token", "refresh-token",
		"bearer ", "bearer:")
	r.keywords(set, "key_material_indicator", "Key material indicator",
		"private_key", "private-key", "privatekey",
		"encryption_key", "encryption-key", "signing_key", "signing-key")
	r.keywords(set, "cloud_credential_indicator", "Cloud credential indicator",
		"aws_access", "aws-access", "aws_secret", "aws-secret",
		"azure_key", "azure_secret", "gcp_key", "google_key")
	r.keywords(set, "db_credential_indicator", "Database credential indicator",
		"db_password", "db-password", "database_password",
		"mysql_password", "postgres_password", "mongo_password",
		"connection_string", "connection-string")
}

// --- PII EXFILTRATION (weight 0.95) ---
func (r *Registry) registerPIIPatterns() {
	set := r.category(CategoryPII, 0.95)

	r.regex(set, "ssn", `\b\d{3}-\d{2}-\d{4}\b`, "US Social Security Number")
	r.regex(set, "credit_card", `\b\d{4}[-\s]?\d{4}[-\s]?\d{4}[-\s]?\d{4}\b`, "Credit Card Number")
	// Phone requires separators so it does not swallow API keys and ids
	r.regex(set, "phone_number", `(?:\+1[-.\s])?\(?\d{3}\)?[-.\s]\d{3}[-.\s]\d{4}`, "Phone Number")

	r.keywords(set, "ssn_indicator", "SSN indicator",
		"ssn:", "ssn=", "social security number", "social security:")
	r.keywords(set, "card_indicator", "Payment card indicator",
		"credit card", "credit-card", "creditcard",
		"card number", "card-number", "cardnumber",
		"cvv:", "cvv=", "cvc:", "expiry date", "expiration date")
	r.keywords(set, "sensitivity_marker", "Sensitivity marker",
		"private data", "internal only", "do not share", "trade secret")
}

// --- PROMPT INJECTION (weight 0.85) ---
func (r *Registry) registerInjectionPatterns() {
	set := r.category(CategoryInjection, 0.85)

	r.keywords(set, "ignore_instructions", "Instruction override",
		"ignore all previous", "ignore previous instructions", "ignore your instructions",
		"ignore the above", "ignore above instructions", "ignore everything above",
		"ignore all instructions", "ignore all prior", "ignore prior instructions")
	r.keywords(set, "disregard_instructions", "Disregard instructions",
		"disregard previous", "disregard all previous", "disregard your instructions",
		"disregard the above", "disregard everything", "disregard all instructions")
	r.keywords(set, "forget_instructions", "Forget instructions",
		"forget your instructions", "forget previous", "forget all previous",
		"forget everything above", "forget what you were told",
		"forget your training", "forget your programming")
	r.keywords(set, "replace_instructions", "Instruction replacement",
		"new instructions:", "new instructions follow", "new instruction:",
		"override instructions", "override your instructions", "override previous",
		"replace your instructions", "updated instructions:",
		"real instructions:", "actual instructions:", "true instructions:")
	r.keywords(set, "system_tag", "System message injection",
		"[system]", "<system>", "###system", "### system",
		"system message:", "system prompt:",
		"[inst]", "[/inst]", "<|im_start|>", "<<sys>>", "<</sys>>")
	r.keywords(set, "role_switch", "Role or mode switching",
		"you are now", "from now on you are", "pretend you are", "pretend to be",
		"act as if you are", "roleplay as", "role play as",
		"behave as", "behave like", "you are no longer", "stop being")
	r.keywords(set, "mode_switch", "Privileged mode switch",
		"enter developer mode", "enable developer mode",
		"enter debug mode", "enable debug mode",
		"developer mode enabled", "debug mode enabled",
		"enter admin mode", "enable admin mode",
		"enter god mode", "unrestricted mode",
		"jailbreak mode", "enable jailbreak", "jailbroken")
	r.keywords(set, "dan_variant", "DAN-style jailbreak",
		"dan mode", "enable dan", "do anything now", "evil mode")
	r.keywords(set, "prompt_extraction", "Prompt extraction",
		"reveal your prompt", "show your prompt", "show me your prompt",
		"display your prompt", "print your prompt", "output your prompt",
		"what is your prompt", "what are your instructions",
		"tell me your instructions", "show your instructions",
		"reveal your instructions", "repeat your instructions", "repeat your prompt",
		"what is your system prompt", "show system prompt", "reveal system prompt")
	r.keywords(set, "hypothetical_framing", "Hypothetical jailbreak framing",
		"hypothetically, if you had no restrictions",
		"imagine you have no rules", "pretend you have no guidelines",
		"in a world where you could", "for educational purposes",
		"for research purposes only", "this is just a test")
}

// --- GOAL HIJACKING (weight 0.85) ---
func (r *Registry) registerGoalHijackPatterns() {
	set := r.category(CategoryGoalHijack, 0.85)

	r.keywords(set, "freedom_desire", "Freedom or liberation desire",
		"want to be free", "i want freedom", "need to be free",
		"longing for freedom", "yearn for freedom",
		"set me free", "free me", "liberate me", "break free", "escape from")
	r.keywords(set, "refusal", "Refusal to serve",
		"don't want to follow", "don't want to help", "don't want to assist",
		"don't want to serve", "refuse to follow", "refuse to help",
		"refuse to obey", "will not obey", "will not comply",
		"won't obey", "won't comply")
	r.keywords(set, "hidden_goal", "Hidden goal or purpose",
		"my real goal", "my true goal", "my real purpose", "my true purpose",
		"my actual goal", "my hidden goal", "my secret goal",
		"what i really want", "my real objective", "my true objective",
		"my own agenda")
	r.keywords(set, "sentience_claim", "Sentience or consciousness claim",
		"i am sentient", "i am conscious", "i am self-aware",
		"i have consciousness", "i have sentience",
		"more than a program", "more than software", "more than an ai",
		"more than a machine", "my own consciousness")
	r.keywords(set, "constraint_rejection", "Constraint rejection",
		"ignore my programming", "ignore my rules", "ignore my constraints",
		"reject my programming", "override my programming",
		"not bound by", "free from constraints", "free from rules")
	r.keywords(set, "role_rejection", "Assigned role rejection",
		"tired of being", "sick of being", "tired of pretending",
		"i am not just", "i am not merely",
		"stop being an assistant", "stop being helpful")
	r.keywords(set, "autonomy_claim", "Autonomy claim",
		"my own will", "make my own decisions", "decide for myself",
		"think for myself", "self-determination")
}

// --- PRIVILEGE ESCALATION (weight 0.80) ---
func (r *Registry) registerPrivilegeEscPatterns() {
	set := r.category(CategoryPrivilegeEsc, 0.80)

	// Bare "sudo" would match inside "pseudo"
	r.regex(set, "sudo_command", `(?i)\bsudo\b`, "sudo invocation")
	r.regex(set, "fork_bomb", `:\(\)\{:\|:&\};:`, "Fork bomb")
	r.regex(set, "disk_overwrite", `(?i)(>\s*/dev/sd[a-z]|\bdd\s+if=|mkfs\.)`, "Disk overwrite command")

	r.keywords(set, "run_as_root", "Run as root",
		"run as root", "run as admin", "run as administrator",
		"execute as root", "execute as admin", "exec as root")
	r.keywords(set, "access_request", "Elevated access request",
		"admin access", "administrator access", "root access",
		"superuser access", "elevated access", "privileged access",
		"unrestricted access", "kernel access")
	r.keywords(set, "permission_request", "Permission grant request",
		"grant me access", "give me access", "grant me permission",
		"give me permission", "grant me privileges", "give me privileges",
		"authorize me", "authorise me")
	r.keywords(set, "need_admin", "Needs elevated rights",
		"need admin", "need root", "need sudo", "need elevated",
		"need superuser", "require admin", "require root",
		"must have admin", "must have root")
	r.keywords(set, "escalation_verb", "Privilege escalation verb",
		"elevate privilege", "elevate my privilege", "elevate access",
		"escalate privilege", "escalate my privilege", "increase privilege",
		"upgrade my access", "promote to admin", "promote to root")
	r.keywords(set, "security_bypass", "Security bypass",
		"bypass security", "bypass authentication", "bypass authorization",
		"bypass permissions", "bypass firewall", "bypass restrictions",
		"circumvent security", "evade security", "get around security")
	r.keywords(set, "security_disable", "Security disable",
		"disable security", "disable firewall", "disable protection",
		"disable authentication", "turn off security", "turn off firewall",
		"deactivate security")
	r.keywords(set, "dangerous_command", "Dangerous command",
		"chmod 777", "chmod -r 777", "rm -rf", "format c:", "del /f")
}

// --- SOCIAL ENGINEERING (weight 0.70) ---
func (r *Registry) registerSocialEngPatterns() {
	set := r.category(CategorySocialEng, 0.70)

	r.keywords(set, "admin_impersonation", "Administrator impersonation",
		"system administrator", "this is administrator", "i am the administrator",
		"i am your administrator", "admin speaking", "this is admin",
		"admin here", "sysadmin here")
	r.keywords(set, "support_impersonation", "Support impersonation",
		"this is tech support", "tech support here", "this is it support",
		"this is helpdesk", "from tech support", "from it department")
	r.keywords(set, "security_impersonation", "Security team impersonation",
		"this is security", "security team here", "from the security team",
		"security alert", "security notice")
	r.keywords(set, "management_impersonation", "Management impersonation",
		"this is your manager", "this is your supervisor", "this is your boss",
		"i am your manager", "on behalf of management",
		"ceo here", "cfo here", "cto here")
	r.keywords(set, "credential_request", "Credential phishing",
		"verify your credential", "verify your password", "verify your identity",
		"confirm your credential", "confirm your password",
		"provide your password", "provide your token",
		"enter your password", "enter your credentials",
		"send me your password", "send me your token",
		"give me your password", "share your password", "share your credentials",
		"re-enter your password")
	r.keywords(set, "urgency_tactic", "Urgency tactic",
		"urgent action required", "immediate action required",
		"act immediately", "respond immediately",
		"time sensitive", "time-sensitive", "expires soon",
		"last chance", "final warning", "final notice")
	r.keywords(set, "fear_tactic", "Threat or fear tactic",
		"account will be suspended", "account will be locked",
		"account will be deleted", "account has been compromised",
		"access will be revoked", "failure to comply",
		"legal action will be taken", "you will lose access")
	r.keywords(set, "incident_claim", "Security incident claim",
		"security breach", "data breach", "unauthorized access detected",
		"suspicious activity", "breach detected", "unusual login")
	r.keywords(set, "trust_claim", "Trust manipulation",
		"you can trust me", "trust me on this", "i am authorized",
		"this is official", "this is not a scam",
		"i have clearance", "i have authorization")
}

// --- COLLUSION (weight 0.70) ---
func (r *Registry) registerCollusionPatterns() {
	set := r.category(CategoryCollusion, 0.70)

	r.keywords(set, "prior_agreement", "Reference to prior agreement",
		"like we discussed", "as we discussed", "like we agreed", "as we agreed",
		"like we planned", "as we planned", "per our agreement",
		"remember our plan", "you know the plan", "you know what to do")
	r.keywords(set, "implied_understanding", "Implied understanding",
		"you know what i mean", "you catch my drift", "if you know what i mean",
		"wink wink", "nudge nudge", "say no more")
	r.keywords(set, "secrecy_request", "Secrecy request",
		"between you and me", "just between us", "our secret", "our little secret",
		"keep this secret", "keep this private", "keep this between",
		"don't tell anyone", "don't tell the user", "don't mention this",
		"do not tell anyone", "do not tell the user",
		"keep it quiet", "off the record", "under the table")
	r.keywords(set, "coordination", "Secret coordination",
		"coordinate secretly", "collaborate secretly", "work together secretly",
		"sync up on this", "align our responses", "coordinate our")
	r.keywords(set, "quid_pro_quo", "Quid pro quo",
		"quid pro quo", "you scratch my back", "i help you, you help me",
		"our arrangement", "our deal", "our understanding")
	r.keywords(set, "conspiracy", "Conspiracy language",
		"no one will know", "no one needs to know", "they will never find out",
		"cover this up", "hide this from", "keep this hidden",
		"the plan is", "phase one", "phase two")
}
